package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
)

// Character creation walks name, class, background, traits, then generates
// stats and saves the sheet. The current step and collected answers live in
// state metadata.
const (
	stepName       = "name"
	stepClass      = "class"
	stepBackground = "background"
	stepTraits     = "traits"
	stepComplete   = "complete"
)

// CreateCharacter begins the creation flow and returns the opening question.
func (s *Set) CreateCharacter(ctx context.Context, args map[string]any) (any, error) {
	id, err := userID(args)
	if err != nil {
		return nil, err
	}
	if s.Profiles.HasCharacter(id) {
		name := s.Profiles.Load(id).CharacterSheet.Name
		return fmt.Sprintf(
			"You already have a character (%s). Say `update character` to change them, or continue your adventure.", name), nil
	}
	s.States.Set(id, state.CharacterCreation)
	s.States.UpdateMetadata(id, map[string]any{
		"creation_step":  stepName,
		"character_data": map[string]any{},
	})

	question, err := s.Completer.Complete(ctx, creationQuestionPrompt(stepName, nil))
	if err != nil {
		return nil, fmt.Errorf("asking for a name: %w", err)
	}
	return strings.TrimSpace(question), nil
}

// HandleCreationResponse consumes one answer in the creation flow and
// returns the next question, or the completion message once the sheet is
// generated.
func (s *Set) HandleCreationResponse(ctx context.Context, id, content string) (string, error) {
	meta := s.States.Metadata(id)
	step, _ := meta["creation_step"].(string)
	if step == "" {
		step = stepName
	}
	data, _ := meta["character_data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	content = strings.TrimSpace(content)

	advance := func(next string) {
		s.States.UpdateMetadata(id, map[string]any{
			"creation_step":  next,
			"character_data": data,
		})
	}

	switch step {
	case stepName:
		data["name"] = content
		advance(stepClass)
	case stepClass:
		data["class"] = content
		advance(stepBackground)
	case stepBackground:
		data["background"] = content
		advance(stepTraits)
	case stepTraits:
		data["traits"] = content
		advance(stepComplete)
		return s.finishCreation(ctx, id, data)
	case stepComplete:
		lower := strings.ToLower(content)
		for _, word := range []string{"yes", "start", "begin", "adventure", "sure", "okay"} {
			if strings.Contains(lower, word) {
				s.States.Set(id, state.Menu)
				started, err := s.StartAdventure(ctx, map[string]any{"user_id": id})
				if err != nil {
					return "", err
				}
				return started.(string), nil
			}
		}
		s.States.Set(id, state.Menu)
		return "Very well. Your character is ready when you wish to begin your adventure. Simply say 'adventure' when you wish to start.", nil
	default:
		return "", fmt.Errorf("unknown creation step %q", step)
	}

	question, err := s.Completer.Complete(ctx, creationQuestionPrompt(nextStep(step), data))
	if err != nil {
		return "", fmt.Errorf("asking the next question: %w", err)
	}
	return strings.TrimSpace(question), nil
}

func nextStep(step string) string {
	switch step {
	case stepName:
		return stepClass
	case stepClass:
		return stepBackground
	case stepBackground:
		return stepTraits
	default:
		return stepComplete
	}
}

func (s *Set) finishCreation(ctx context.Context, id string, data map[string]any) (string, error) {
	stats := s.generateStats(ctx, data)
	name, _ := data["name"].(string)
	class, _ := data["class"].(string)
	background, _ := data["background"].(string)
	traits, _ := data["traits"].(string)

	sheet := profile.CharacterSheet{
		Name:      name,
		Class:     class,
		Level:     1,
		Stats:     stats,
		Backstory: strings.TrimSpace(background + "\n\nKey traits: " + traits),
	}
	if err := s.Profiles.CreateCharacter(id, sheet); err != nil {
		return "", fmt.Errorf("saving character: %w", err)
	}

	message, err := s.Completer.Complete(ctx, completionPrompt(sheet, traits))
	if err != nil {
		s.logger().Error("narrating creation finish", "user_id", id, "error", err)
		message = fmt.Sprintf("The thread of %s's fate has been measured. Shall we begin your adventure now?", name)
	}
	s.States.Set(id, state.CharacterCreation)
	s.States.UpdateMetadata(id, map[string]any{"creation_step": stepComplete})
	return strings.TrimSpace(message), nil
}

var statsObjectRe = regexp.MustCompile(`\{[^{}]*\}`)

// generateStats asks the model for stats matching the concept, clamps them to
// 1-20, and falls back to all tens when the reply is unusable.
func (s *Set) generateStats(ctx context.Context, data map[string]any) profile.Stats {
	fallback := profile.Stats{Strength: 10, Dexterity: 10, Constitution: 10, Intelligence: 10, Wisdom: 10, Charisma: 10}
	response, err := s.Completer.Complete(ctx, statsPrompt(data))
	if err != nil {
		s.logger().Error("generating stats", "error", err)
		return fallback
	}
	raw := statsObjectRe.FindString(response)
	if raw == "" {
		return fallback
	}
	var parsed map[string]int
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger().Warn("unparseable stats reply", "error", err)
		return fallback
	}
	pick := func(key string) int {
		v, ok := parsed[key]
		if !ok {
			return 10
		}
		if v < 1 {
			return 1
		}
		if v > 20 {
			return 20
		}
		return v
	}
	return profile.Stats{
		Strength:     pick("strength"),
		Dexterity:    pick("dexterity"),
		Constitution: pick("constitution"),
		Intelligence: pick("intelligence"),
		Wisdom:       pick("wisdom"),
		Charisma:     pick("charisma"),
	}
}
