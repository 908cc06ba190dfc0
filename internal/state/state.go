// Package state tracks which conversational mode each user is in and a small
// metadata map alongside it, persisted per user as state.json.
package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Conversation states. The turn driver branches on these.
const (
	Menu              = "menu"
	Introduction      = "introduction"
	CharacterCreation = "character_creation"
	Adventure         = "adventure"
)

type record struct {
	State    string         `json:"state"`
	Metadata map[string]any `json:"metadata"`
}

// Manager caches state per user and writes through to disk on every change.
type Manager struct {
	dataDir string
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*record
}

func NewManager(dataDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dataDir: dataDir, logger: logger, cache: make(map[string]*record)}
}

func (m *Manager) path(userID string) string {
	return filepath.Join(m.dataDir, "users", userID, "state.json")
}

// Get returns the user's current state, defaulting to Menu.
func (m *Manager) Get(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(userID).State
}

// Set updates the user's state and persists it.
func (m *Manager) Set(userID, st string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.loadLocked(userID)
	r.State = st
	m.saveLocked(userID, r)
	m.logger.Info("state change", "user_id", userID, "state", st)
}

// Metadata returns a copy of the user's state metadata.
func (m *Manager) Metadata(userID string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.loadLocked(userID)
	out := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		out[k] = v
	}
	return out
}

// UpdateMetadata merges updates into the user's state metadata.
func (m *Manager) UpdateMetadata(userID string, updates map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.loadLocked(userID)
	for k, v := range updates {
		r.Metadata[k] = v
	}
	m.saveLocked(userID, r)
}

// ClearMetadata drops all state metadata for the user.
func (m *Manager) ClearMetadata(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.loadLocked(userID)
	r.Metadata = map[string]any{}
	m.saveLocked(userID, r)
}

// UsersIn lists users currently in the given state, checking both the cache
// and the state files on disk.
func (m *Manager) UsersIn(st string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for id, r := range m.cache {
		if r.State == st {
			out = append(out, id)
			seen[id] = true
		}
	}
	entries, err := os.ReadDir(filepath.Join(m.dataDir, "users"))
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !e.IsDir() || seen[e.Name()] {
			continue
		}
		data, err := os.ReadFile(m.path(e.Name()))
		if err != nil {
			continue
		}
		var r record
		if json.Unmarshal(data, &r) == nil && r.State == st {
			out = append(out, e.Name())
		}
	}
	return out
}

func (m *Manager) loadLocked(userID string) *record {
	if r, ok := m.cache[userID]; ok {
		return r
	}
	r := &record{State: Menu, Metadata: map[string]any{}}
	if data, err := os.ReadFile(m.path(userID)); err == nil {
		if err := json.Unmarshal(data, r); err != nil {
			m.logger.Error("corrupt state file", "user_id", userID, "error", err)
		}
		if r.State == "" {
			r.State = Menu
		}
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
	}
	m.cache[userID] = r
	return r
}

func (m *Manager) saveLocked(userID string, r *record) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return
	}
	path := m.path(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		m.logger.Error("saving state", "user_id", userID, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.logger.Error("saving state", "user_id", userID, "error", err)
	}
}
