package state

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetDefaultsToMenu(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, Menu, m.Get("42"))
}

func TestSetAndGet(t *testing.T) {
	m := newTestManager(t)
	m.Set("42", Adventure)
	assert.Equal(t, Adventure, m.Get("42"))
	assert.Equal(t, Menu, m.Get("99"))
}

func TestMetadataRoundTrip(t *testing.T) {
	m := newTestManager(t)
	m.UpdateMetadata("42", map[string]any{"current_adventure": "abc", "creation_step": "name"})
	m.UpdateMetadata("42", map[string]any{"creation_step": "class"})

	meta := m.Metadata("42")
	assert.Equal(t, "abc", meta["current_adventure"])
	assert.Equal(t, "class", meta["creation_step"])

	// The returned map is a copy.
	meta["current_adventure"] = "mutated"
	assert.Equal(t, "abc", m.Metadata("42")["current_adventure"])
}

func TestClearMetadata(t *testing.T) {
	m := newTestManager(t)
	m.UpdateMetadata("42", map[string]any{"k": "v"})
	m.ClearMetadata("42")
	assert.Empty(t, m.Metadata("42"))
}

func TestUsersIn(t *testing.T) {
	m := newTestManager(t)
	m.Set("42", Adventure)
	m.Set("99", Adventure)
	m.Set("7", CharacterCreation)

	got := m.UsersIn(Adventure)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"42", "99"}, got)
	assert.Equal(t, []string{"7"}, m.UsersIn(CharacterCreation))
}

func TestStateSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewManager(dir, logger).Set("42", CharacterCreation)
	assert.Equal(t, CharacterCreation, NewManager(dir, logger).Get("42"))
}
