// Package memory keeps conversation memory: a bounded short-term window of
// raw messages per user (JSON on disk, cached in process) and a long-term
// SQLite archive of summaries.
package memory

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Message is one short-term memory entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Manager holds the short-term window. When the window is nearly full the
// oldest messages are handed back for summarization and trimmed away; the
// summary goes to the Archive.
type Manager struct {
	dataDir string
	limit   int
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string][]Message
}

func NewManager(dataDir string, limit int, logger *slog.Logger) *Manager {
	if limit <= 0 {
		limit = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dataDir: dataDir, limit: limit, logger: logger, cache: make(map[string][]Message)}
}

func (m *Manager) path(userID string) string {
	return filepath.Join(m.dataDir, "users", userID, "memory", "short_term.json")
}

// Append records one message in the user's short-term window.
func (m *Manager) Append(userID, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.loadLocked(userID)
	msgs = append(msgs, Message{Role: role, Content: content})
	if len(msgs) > m.limit {
		msgs = msgs[len(msgs)-m.limit:]
	}
	m.cache[userID] = msgs
	m.saveLocked(userID, msgs)
}

// History returns the user's short-term history, oldest first.
func (m *Manager) History(userID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.loadLocked(userID)
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear empties the user's short-term window.
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[userID] = nil
	m.saveLocked(userID, []Message{})
}

// TrimIfNeeded checks whether the window is at least 80% full; if so it trims
// to the newest half and returns the removed messages for summarization.
// Returns nil when nothing needs summarizing.
func (m *Manager) TrimIfNeeded(userID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.loadLocked(userID)
	if len(msgs)*5 < m.limit*4 {
		return nil
	}
	keep := m.limit / 2
	if len(msgs) <= keep {
		return nil
	}
	drop := make([]Message, len(msgs)-keep)
	copy(drop, msgs[:len(msgs)-keep])
	kept := make([]Message, keep)
	copy(kept, msgs[len(msgs)-keep:])
	m.cache[userID] = kept
	m.saveLocked(userID, kept)
	return drop
}

func (m *Manager) loadLocked(userID string) []Message {
	if msgs, ok := m.cache[userID]; ok {
		return msgs
	}
	var msgs []Message
	if data, err := os.ReadFile(m.path(userID)); err == nil {
		if err := json.Unmarshal(data, &msgs); err != nil {
			m.logger.Error("corrupt short-term memory", "user_id", userID, "error", err)
			msgs = nil
		}
	}
	if len(msgs) > m.limit {
		msgs = msgs[len(msgs)-m.limit:]
	}
	m.cache[userID] = msgs
	return msgs
}

func (m *Manager) saveLocked(userID string, msgs []Message) {
	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	path := m.path(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		m.logger.Error("saving short-term memory", "user_id", userID, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.logger.Error("saving short-term memory", "user_id", userID, "error", err)
	}
}
