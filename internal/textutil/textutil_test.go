package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world 42", Normalize("  Hello, WORLD!   42  "))
	assert.Equal(t, "", Normalize("!!!"))
}

func TestRemoveStageDirections(t *testing.T) {
	in := "The door creaks open (dramatic pause) and *gasps* a figure [the villain] appears."
	assert.Equal(t, "The door creaks open and a figure appears.", RemoveStageDirections(in))
}

func TestSplitShortTextUntouched(t *testing.T) {
	parts := Split("a short reply", 100)
	require.Equal(t, []string{"a short reply"}, parts)
}

func TestSplitPrefersParagraphs(t *testing.T) {
	first := strings.Repeat("a", 60)
	second := strings.Repeat("b", 60)
	parts := Split(first+"\n\n"+second, 100)
	require.Len(t, parts, 2)
	assert.Equal(t, first, parts[0])
	assert.Equal(t, second, parts[1])
}

func TestSplitFallsBackToSentences(t *testing.T) {
	text := "The cavern yawns wide before you. Water drips from unseen heights. A torch gutters on the far wall."
	parts := Split(text, 60)
	require.True(t, len(parts) >= 2)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 60)
	}
	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

func TestSplitBreaksOversizedWordsRuns(t *testing.T) {
	text := strings.Repeat("word ", 50)
	parts := Split(strings.TrimSpace(text), 40)
	require.True(t, len(parts) > 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 40)
	}
}

func TestFormatSheet(t *testing.T) {
	out := FormatSheet(Sheet{
		Name:  "Kalessin",
		Race:  "Dragonborn",
		Class: "Sorcerer",
		Level: 3,
		Stats: map[string]int{"strength": 8, "intelligence": 16},
		Skills: map[string]int{
			"arcana": 5,
		},
		Inventory: []string{"staff", "robes"},
		Backstory: "Hatched beneath a dying star.",
	})
	assert.Contains(t, out, "# Kalessin")
	assert.Contains(t, out, "**Level 3 Dragonborn Sorcerer**")
	assert.Contains(t, out, "- Strength: 8")
	assert.Contains(t, out, "- Intelligence: 16")
	assert.Contains(t, out, "- Wisdom: 10") // unset stats default
	assert.Contains(t, out, "arcana: 5")
	assert.Contains(t, out, "- staff")
	assert.Contains(t, out, "Hatched beneath a dying star.")
}

func TestFormatSheetEmpty(t *testing.T) {
	assert.Equal(t, "No character data available.", FormatSheet(Sheet{}))
}
