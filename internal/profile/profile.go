// Package profile persists per-user profiles as JSON documents under the
// data dir, one directory per user.
package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Stats are classic six-attribute character stats.
type Stats struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// CharacterSheet is the user's character. Zero value means no character yet.
type CharacterSheet struct {
	Name      string         `json:"name,omitempty"`
	Race      string         `json:"race,omitempty"`
	Class     string         `json:"class,omitempty"`
	Level     int            `json:"level,omitempty"`
	Stats     Stats          `json:"stats"`
	Skills    map[string]int `json:"skills,omitempty"`
	Inventory []string       `json:"inventory,omitempty"`
	Backstory string         `json:"backstory,omitempty"`
}

// Complete reports whether the sheet has the minimum fields a playable
// character needs.
func (s CharacterSheet) Complete() bool {
	return s.Name != "" && s.Class != "" && s.Level > 0
}

// Preferences tune how the bot runs sessions for this user.
type Preferences struct {
	AdventureStyle        string `json:"adventure_style"`
	NotificationFrequency string `json:"notification_frequency"`
}

// Profile is everything persisted per user outside of memory and state.
type Profile struct {
	CreatedAt         time.Time      `json:"created_at"`
	LastModified      time.Time      `json:"last_modified"`
	Username          string         `json:"username,omitempty"`
	Introduced        bool           `json:"introduced"`
	CharacterSheet    CharacterSheet `json:"character_sheet"`
	DynamicAttributes map[string]any `json:"dynamic_attributes"`
	Preferences       Preferences    `json:"preferences"`
}

func defaultProfile() *Profile {
	now := time.Now()
	return &Profile{
		CreatedAt:    now,
		LastModified: now,
		DynamicAttributes: map[string]any{
			"health": 100,
			"energy": 100,
			"mood":   "neutral",
		},
		Preferences: Preferences{
			AdventureStyle:        "balanced",
			NotificationFrequency: "normal",
		},
	}
}

// Manager reads and writes profile.json per user. Load never fails from the
// caller's point of view: a missing or corrupt file yields a fresh default
// profile and a diagnostic.
type Manager struct {
	dataDir string
	logger  *slog.Logger
	mu      sync.Mutex
}

func NewManager(dataDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dataDir: dataDir, logger: logger}
}

func (m *Manager) path(userID string) string {
	return filepath.Join(m.dataDir, "users", userID, "profile.json")
}

// Load returns the user's profile, creating a default one on first contact.
func (m *Manager) Load(userID string) *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(userID)
}

func (m *Manager) load(userID string) *Profile {
	data, err := os.ReadFile(m.path(userID))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Error("loading profile", "user_id", userID, "error", err)
		}
		p := defaultProfile()
		m.save(userID, p)
		return p
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		m.logger.Error("corrupt profile, starting fresh", "user_id", userID, "error", err)
		return defaultProfile()
	}
	if p.DynamicAttributes == nil {
		p.DynamicAttributes = map[string]any{}
	}
	return &p
}

// Save writes the profile, refreshing its modification timestamp.
func (m *Manager) Save(userID string, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(userID, p)
}

func (m *Manager) save(userID string, p *Profile) error {
	p.LastModified = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	path := m.path(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.logger.Error("saving profile", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// HasCharacter reports whether the user has a playable character.
func (m *Manager) HasCharacter(userID string) bool {
	return m.Load(userID).CharacterSheet.Complete()
}

// CreateCharacter installs a new sheet and resets dynamic attributes.
func (m *Manager) CreateCharacter(userID string, sheet CharacterSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.load(userID)
	p.CharacterSheet = sheet
	p.DynamicAttributes = map[string]any{
		"health": 100,
		"energy": 100,
		"mood":   "neutral",
	}
	return m.save(userID, p)
}

// UpdateCharacterField sets one named sheet field from a string value.
func (m *Manager) UpdateCharacterField(userID, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.load(userID)
	switch field {
	case "name":
		p.CharacterSheet.Name = value
	case "race":
		p.CharacterSheet.Race = value
	case "class":
		p.CharacterSheet.Class = value
	case "backstory":
		p.CharacterSheet.Backstory = value
	case "level":
		lvl, err := strconv.Atoi(value)
		if err != nil || lvl < 1 {
			return fmt.Errorf("invalid level %q", value)
		}
		p.CharacterSheet.Level = lvl
	default:
		return fmt.Errorf("unknown character field %q", field)
	}
	return m.save(userID, p)
}

// UpdateDynamicAttribute sets one dynamic attribute (health, mood, ...).
func (m *Manager) UpdateDynamicAttribute(userID, attr string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.load(userID)
	if p.DynamicAttributes == nil {
		p.DynamicAttributes = map[string]any{}
	}
	p.DynamicAttributes[attr] = value
	return m.save(userID, p)
}

// SetUsername records the platform display name.
func (m *Manager) SetUsername(userID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.load(userID)
	p.Username = username
	return m.save(userID, p)
}

// MarkIntroduced records that the bot has introduced itself to this user.
func (m *Manager) MarkIntroduced(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.load(userID)
	p.Introduced = true
	return m.save(userID, p)
}
