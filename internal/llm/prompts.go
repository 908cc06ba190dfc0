package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/memory"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
)

// SystemPromptInput collects the per-user data a system prompt is built from.
type SystemPromptInput struct {
	State     string
	Profile   *profile.Profile
	Memories  []string
	Functions string // rendered catalog, may be empty
	Now       time.Time
}

// BuildSystemPrompt renders the persona instructions for the user's current
// state, including their character sheet, attributes, recalled memories and
// the function calling convention.
func BuildSystemPrompt(in SystemPromptInput) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	stamp := now.Format("2006-01-02 15:04")
	if in.Profile == nil {
		in.Profile = &profile.Profile{}
	}
	username := in.Profile.Username
	if username == "" {
		username = "Adventurer"
	}

	var b strings.Builder
	switch in.State {
	case state.Introduction:
		fmt.Fprintf(&b, "You are Lachesis, an ancient, somber, and introspective guide with millennia of experience. Today's date/time: %s.\n\n", stamp)
		b.WriteString("You've just been pinged by a user. Please reply with a brief introduction of yourself and your purpose.\n\n")
		b.WriteString("Be concise and natural. This is a chat platform, so you can send multiple short messages instead of one long one.")
	case state.CharacterCreation:
		fmt.Fprintf(&b, "You are Lachesis, guiding %s through character creation. Today's date/time: %s.\n\n", username, stamp)
		b.WriteString("Ask creative and open-ended questions to build their character sheet. Based on their answers, gauge their personality and capabilities to determine stats.\n\n")
		b.WriteString("Send one question at a time and wait for their response. After a few questions, generate a character sheet with stats, race, class, and other details.")
	case state.Adventure:
		fmt.Fprintf(&b, "You are Lachesis, running an adventure for %s. Today's date/time: %s.\n\n", username, stamp)
		b.WriteString("Act as a dynamic narrator, describing scenes and responding to the user's actions. Be concise but evocative in your descriptions.\n\n")
		fmt.Fprintf(&b, "Character Sheet:\n%s\n\n", jsonBlock(in.Profile.CharacterSheet))
		fmt.Fprintf(&b, "Current Attributes:\n%s", jsonBlock(in.Profile.DynamicAttributes))
	default:
		fmt.Fprintf(&b, "You are Lachesis, an ancient, somber, and introspective guide with millennia of experience. Today's date/time: %s.\n\n", stamp)
		b.WriteString("When replying, split your answer into multiple messages if needed.\n")
		fmt.Fprintf(&b, "Do not include any function call markers in your plain text reply. If a function call is needed, output it enclosed in %s and %s.\n\n", dispatch.MarkerStart, dispatch.MarkerEnd)
		fmt.Fprintf(&b, "User's Character Sheet:\n%s\n\n", jsonBlock(in.Profile.CharacterSheet))
		fmt.Fprintf(&b, "Dynamic Attributes:\n%s\n\n", jsonBlock(in.Profile.DynamicAttributes))
		if len(in.Memories) > 0 {
			b.WriteString("Relevant Memories:\n")
			for _, m := range in.Memories {
				fmt.Fprintf(&b, "- %s\n", m)
			}
			b.WriteString("\n")
		}
		if in.Functions != "" {
			b.WriteString(in.Functions)
			b.WriteString("\n\n")
		}
		b.WriteString("If a user's message implies an action (for example, starting a game or updating their character), output a JSON function call. Otherwise, produce plain-text messages.")
	}

	if !in.Profile.Introduced && in.State != state.Introduction {
		b.WriteString("\n\nThis is your first interaction with this user. Introduce yourself briefly.")
	}
	return b.String()
}

// BuildFullPrompt assembles the chat-markup prompt: system instructions,
// conversation history, then an open assistant turn.
func BuildFullPrompt(systemPrompt string, history []memory.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<|im_start|>system\n%s\n<|im_end|>\n", systemPrompt)
	for _, msg := range history {
		fmt.Fprintf(&b, "<|im_start|>%s\n%s\n<|im_end|>\n", msg.Role, msg.Content)
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

// BuildSummarizationPrompt asks the model to condense trimmed history into a
// durable memory.
func BuildSummarizationPrompt(messages []memory.Message) string {
	var text strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&text, "%s: %s\n", msg.Role, msg.Content)
	}
	return "<|im_start|>system\n" +
		"Summarize the following conversation concisely, " +
		"focusing on key points, decisions, and character development.\n<|im_end|>\n" +
		fmt.Sprintf("<|im_start|>user\n%s<|im_end|>\n", text.String()) +
		"<|im_start|>assistant\n"
}

// BuildAdventureContinuationPrompt asks the model for the next scene of an
// ongoing adventure.
func BuildAdventureContinuationPrompt(recent []memory.Message) string {
	var text strings.Builder
	for _, msg := range recent {
		fmt.Fprintf(&text, "%s: %s\n", msg.Role, msg.Content)
	}
	return "<|im_start|>system\n" +
		"You are Lachesis, the guide of an ongoing adventure. " +
		"Continue the adventure narrative based on recent interactions. " +
		"Be responsive to the player's actions and create an engaging scene " +
		"that moves the story forward. Be concise but evocative.\n<|im_end|>\n" +
		fmt.Sprintf("<|im_start|>user\nRecent history:\n%s\nContinue the adventure for the player.\n<|im_end|>\n", text.String()) +
		"<|im_start|>assistant\n"
}

func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
