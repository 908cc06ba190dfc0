// Package adventure stores adventures and their templates as JSON documents:
// templates under templates/, live adventures under active/.
package adventure

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Option is a choice offered at the end of a scene. Next names the scene the
// choice leads to.
type Option struct {
	Text string `json:"text"`
	Next string `json:"next"`
}

// Scene is one narrative beat of an adventure.
type Scene struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Options     []Option `json:"options,omitempty"`
}

// Adventure is a live or completed run. Template-less adventures grow scenes
// as the narrator generates them.
type Adventure struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TemplateID   string    `json:"template_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Status       string    `json:"status"` // active or completed
	Scenes       []Scene   `json:"scenes"`
	CurrentScene string    `json:"current_scene,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// Template is a reusable adventure skeleton.
type Template struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Synopsis   string  `json:"synopsis,omitempty"`
	Scenes     []Scene `json:"scenes"`
	FirstScene string  `json:"first_scene,omitempty"`
}

// Manager persists adventures and templates under dataDir/adventures.
type Manager struct {
	templatesDir string
	activeDir    string
	logger       *slog.Logger

	mu    sync.Mutex
	cache map[string]*Adventure
}

func NewManager(dataDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		templatesDir: filepath.Join(dataDir, "adventures", "templates"),
		activeDir:    filepath.Join(dataDir, "adventures", "active"),
		logger:       logger,
		cache:        make(map[string]*Adventure),
	}
	if err := os.MkdirAll(m.templatesDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.activeDir, 0o755); err != nil {
		return nil, err
	}
	return m, nil
}

// Templates lists all stored templates.
func (m *Manager) Templates() []Template {
	var out []Template
	entries, err := os.ReadDir(m.templatesDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.templatesDir, e.Name()))
		if err != nil {
			continue
		}
		var t Template
		if err := json.Unmarshal(data, &t); err != nil {
			m.logger.Error("corrupt adventure template", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, t)
	}
	return out
}

// SaveTemplate stores a template, assigning an id if it has none.
func (m *Manager) SaveTemplate(t *Template) error {
	if t.ID == "" {
		t.ID = "template_" + uuid.NewString()[:8]
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.templatesDir, t.ID+".json"), data, 0o644)
}

// Start creates a new active adventure for the user, optionally instantiated
// from a template, and returns it.
func (m *Manager) Start(userID, templateID string) (*Adventure, error) {
	adv := &Adventure{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    "active",
		CreatedAt: time.Now(),
	}
	if templateID != "" {
		data, err := os.ReadFile(filepath.Join(m.templatesDir, templateID+".json"))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", templateID, err)
		}
		var t Template
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("template %s: %w", templateID, err)
		}
		adv.TemplateID = t.ID
		adv.Title = t.Title
		adv.Scenes = t.Scenes
		adv.CurrentScene = t.FirstScene
		if adv.CurrentScene == "" && len(t.Scenes) > 0 {
			adv.CurrentScene = t.Scenes[0].ID
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[adv.ID] = adv
	if err := m.saveLocked(adv); err != nil {
		return nil, err
	}
	return adv, nil
}

// Get returns the adventure with the given id, or nil.
func (m *Manager) Get(id string) *Adventure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(id)
}

// ActiveFor returns the user's active adventures, newest first not guaranteed.
func (m *Manager) ActiveFor(userID string) []*Adventure {
	entries, err := os.ReadDir(m.activeDir)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Adventure
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		adv := m.loadLocked(strings.TrimSuffix(e.Name(), ".json"))
		if adv != nil && adv.UserID == userID && adv.Status == "active" {
			out = append(out, adv)
		}
	}
	return out
}

// AddScene appends a scene (assigning an id if empty) and makes it current.
func (m *Manager) AddScene(adventureID string, s Scene) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	adv := m.loadLocked(adventureID)
	if adv == nil {
		return "", fmt.Errorf("adventure %s not found", adventureID)
	}
	if s.ID == "" {
		s.ID = "scene_" + uuid.NewString()[:8]
	}
	adv.Scenes = append(adv.Scenes, s)
	adv.CurrentScene = s.ID
	return s.ID, m.saveLocked(adv)
}

// CurrentScene returns the adventure's current scene, or nil.
func (m *Manager) CurrentScene(adventureID string) *Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	adv := m.loadLocked(adventureID)
	if adv == nil {
		return nil
	}
	for i := range adv.Scenes {
		if adv.Scenes[i].ID == adv.CurrentScene {
			return &adv.Scenes[i]
		}
	}
	return nil
}

// Advance moves to the scene a choice key points at and returns it, or nil
// when the key matches no option of the current scene.
func (m *Manager) Advance(adventureID, choiceKey string) *Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	adv := m.loadLocked(adventureID)
	if adv == nil {
		return nil
	}
	var current *Scene
	for i := range adv.Scenes {
		if adv.Scenes[i].ID == adv.CurrentScene {
			current = &adv.Scenes[i]
			break
		}
	}
	if current == nil {
		return nil
	}
	for _, opt := range current.Options {
		if opt.Next != choiceKey {
			continue
		}
		for i := range adv.Scenes {
			if adv.Scenes[i].ID == choiceKey {
				adv.CurrentScene = choiceKey
				if err := m.saveLocked(adv); err != nil {
					return nil
				}
				return &adv.Scenes[i]
			}
		}
	}
	return nil
}

// Complete marks the adventure finished.
func (m *Manager) Complete(adventureID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	adv := m.loadLocked(adventureID)
	if adv == nil {
		return fmt.Errorf("adventure %s not found", adventureID)
	}
	adv.Status = "completed"
	adv.CompletedAt = time.Now()
	return m.saveLocked(adv)
}

func (m *Manager) loadLocked(id string) *Adventure {
	if adv, ok := m.cache[id]; ok {
		return adv
	}
	data, err := os.ReadFile(filepath.Join(m.activeDir, id+".json"))
	if err != nil {
		return nil
	}
	var adv Adventure
	if err := json.Unmarshal(data, &adv); err != nil {
		m.logger.Error("corrupt adventure", "adventure_id", id, "error", err)
		return nil
	}
	m.cache[id] = &adv
	return &adv
}

func (m *Manager) saveLocked(adv *Adventure) error {
	data, err := json.MarshalIndent(adv, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.activeDir, adv.ID+".json"), data, 0o644)
}
