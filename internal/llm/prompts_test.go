package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NolanChai/discord-gm/internal/memory"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
)

func TestBuildSystemPromptMenu(t *testing.T) {
	out := BuildSystemPrompt(SystemPromptInput{
		State: state.Menu,
		Profile: &profile.Profile{
			Username:   "nolan",
			Introduced: true,
			CharacterSheet: profile.CharacterSheet{
				Name: "Borin", Class: "Fighter", Level: 2,
			},
		},
		Memories:  []string{"met a dragon", "bought rope"},
		Functions: "Available functions:\n  display_profile() - show the sheet",
	})
	assert.Contains(t, out, "You are Lachesis")
	assert.Contains(t, out, "<|function_call|>")
	assert.Contains(t, out, "<|end_function_call|>")
	assert.Contains(t, out, `"name": "Borin"`)
	assert.Contains(t, out, "- met a dragon")
	assert.Contains(t, out, "display_profile()")
	assert.NotContains(t, out, "first interaction")
}

func TestBuildSystemPromptFirstContact(t *testing.T) {
	out := BuildSystemPrompt(SystemPromptInput{State: state.Menu, Profile: &profile.Profile{}})
	assert.Contains(t, out, "first interaction")
}

func TestBuildSystemPromptIntroduction(t *testing.T) {
	out := BuildSystemPrompt(SystemPromptInput{State: state.Introduction, Profile: &profile.Profile{}})
	assert.Contains(t, out, "brief introduction")
	assert.NotContains(t, out, "first interaction")
}

func TestBuildSystemPromptAdventure(t *testing.T) {
	out := BuildSystemPrompt(SystemPromptInput{
		State: state.Adventure,
		Profile: &profile.Profile{
			Username:          "nolan",
			CharacterSheet:    profile.CharacterSheet{Name: "Borin"},
			DynamicAttributes: map[string]any{"health": 80},
		},
	})
	assert.Contains(t, out, "running an adventure for nolan")
	assert.Contains(t, out, `"name": "Borin"`)
	assert.Contains(t, out, `"health": 80`)
}

func TestBuildSystemPromptNilProfile(t *testing.T) {
	out := BuildSystemPrompt(SystemPromptInput{State: state.Menu})
	assert.Contains(t, out, "You are Lachesis")
}

func TestBuildFullPrompt(t *testing.T) {
	out := BuildFullPrompt("be the narrator", []memory.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "well met"},
	})
	require.True(t, strings.HasPrefix(out, "<|im_start|>system\nbe the narrator\n<|im_end|>\n"))
	assert.Contains(t, out, "<|im_start|>user\nhello\n<|im_end|>\n")
	assert.Contains(t, out, "<|im_start|>assistant\nwell met\n<|im_end|>\n")
	assert.True(t, strings.HasSuffix(out, "<|im_start|>assistant\n"))
}

func TestBuildSummarizationPrompt(t *testing.T) {
	out := BuildSummarizationPrompt([]memory.Message{{Role: "user", Content: "I opened the chest"}})
	assert.Contains(t, out, "Summarize the following conversation")
	assert.Contains(t, out, "user: I opened the chest")
}

func TestBuildAdventureContinuationPrompt(t *testing.T) {
	out := BuildAdventureContinuationPrompt([]memory.Message{{Role: "assistant", Content: "the door opens"}})
	assert.Contains(t, out, "Continue the adventure")
	assert.Contains(t, out, "assistant: the door opens")
}
