// Package actions implements the functions the narrator model can call:
// starting and continuing adventures, character creation and updates, profile
// display, and the admin script hook. Each handler returns the text to show
// the user.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/adventure"
	"github.com/NolanChai/discord-gm/internal/llm"
	"github.com/NolanChai/discord-gm/internal/memory"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
	"github.com/NolanChai/discord-gm/internal/textutil"
)

// Completer generates text from a prompt. Satisfied by llm.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Set holds the handlers' shared dependencies.
type Set struct {
	Profiles    *profile.Manager
	States      *state.Manager
	Memories    *memory.Manager
	Adventures  *adventure.Manager
	Completer   Completer
	AdminUserID string
	Logger      *slog.Logger
}

type updateCharacterArgs struct {
	Field string `json:"field" jsonschema:"required"`
	Value string `json:"value" jsonschema:"required"`
}

type executeScriptArgs struct {
	Script string `json:"script" jsonschema:"required"`
}

type continueAdventureArgs struct {
	Choice string `json:"choice,omitempty"`
}

// Register wires every handler into the dispatcher and documents it in the
// catalog.
func (s *Set) Register(d *dispatch.Dispatcher, c *dispatch.Catalog) {
	d.Register("start_adventure", s.StartAdventure)
	d.Register("create_character", s.CreateCharacter)
	d.Register("update_character", s.UpdateCharacter)
	d.Register("continue_adventure", s.ContinueAdventure)
	d.Register("display_profile", s.DisplayProfile)
	d.Register("execute_script", s.ExecuteScript)

	if c != nil {
		c.Add("start_adventure", "begin a new adventure for the user", nil)
		c.Add("create_character", "start the character creation flow", nil)
		c.Add("update_character", "change one field of the user's character sheet", updateCharacterArgs{})
		c.Add("continue_adventure", "resume the user's active adventure or act on a numbered choice", continueAdventureArgs{})
		c.Add("display_profile", "show the user's character sheet and status", nil)
	}
}

func userID(args map[string]any) (string, error) {
	id, _ := args["user_id"].(string)
	if id == "" {
		return "", fmt.Errorf("missing user_id")
	}
	return id, nil
}

// StartAdventure opens a fresh adventure, narrating its first scene. Users
// without a character are routed into creation; users already adventuring
// are resumed instead.
func (s *Set) StartAdventure(ctx context.Context, args map[string]any) (any, error) {
	id, err := userID(args)
	if err != nil {
		return nil, err
	}
	if !s.Profiles.HasCharacter(id) {
		intro, err := s.CreateCharacter(ctx, args)
		if err != nil {
			return nil, err
		}
		return "Before we embark on an adventure, you must create a character. Let me help you with that first.\n\n" + intro.(string), nil
	}
	if s.States.Get(id) == state.Adventure {
		if advID, _ := s.States.Metadata(id)["current_adventure"].(string); advID != "" {
			resumed, err := s.ContinueAdventure(ctx, args)
			if err != nil {
				return nil, err
			}
			return "You're already on an adventure. Let's continue from where you left off.\n\n" + resumed.(string), nil
		}
	}

	adv, err := s.Adventures.Start(id, "")
	if err != nil {
		return nil, fmt.Errorf("starting adventure: %w", err)
	}
	s.States.Set(id, state.Adventure)
	s.States.UpdateMetadata(id, map[string]any{"current_adventure": adv.ID})

	sheet := s.Profiles.Load(id).CharacterSheet
	intro, err := s.Completer.Complete(ctx, adventureIntroPrompt(sheet))
	if err != nil {
		return nil, fmt.Errorf("narrating adventure start: %w", err)
	}
	intro = strings.TrimSpace(intro)

	scene := adventure.Scene{ID: "scene_start", Description: intro, Options: extractOptions(intro)}
	if _, err := s.Adventures.AddScene(adv.ID, scene); err != nil {
		s.logger().Error("recording opening scene", "adventure_id", adv.ID, "error", err)
	}
	if !strings.Contains(intro, "**What will you do?**") {
		intro += "\n\n**What will you do?**"
	}
	return intro, nil
}

// ContinueAdventure moves the user's active adventure forward. When the
// current scene waits on a decision and args carry a choice, the chosen
// option is followed; without a choice the scene is replayed. Scenes without
// a decision point get a freshly narrated next scene. No active adventure
// starts a new one.
func (s *Set) ContinueAdventure(ctx context.Context, args map[string]any) (any, error) {
	id, err := userID(args)
	if err != nil {
		return nil, err
	}
	advID, _ := s.States.Metadata(id)["current_adventure"].(string)
	if advID == "" {
		s.States.Set(id, state.Menu)
		started, err := s.StartAdventure(ctx, args)
		if err != nil {
			return nil, err
		}
		return "You don't have an active adventure. Let's start a new one!\n\n" + started.(string), nil
	}
	scene := s.Adventures.CurrentScene(advID)
	if scene == nil {
		s.States.UpdateMetadata(id, map[string]any{"current_adventure": ""})
		s.States.Set(id, state.Menu)
		started, err := s.StartAdventure(ctx, args)
		if err != nil {
			return nil, err
		}
		return "Error retrieving your adventure. Let's start a new one.\n\n" + started.(string), nil
	}
	if len(scene.Options) > 0 {
		if choice, _ := args["choice"].(string); choice != "" {
			return s.advanceScene(ctx, id, advID, scene, choice)
		}
		return renderScene(scene), nil
	}
	return s.nextScene(ctx, id, advID, "")
}

// advanceScene resolves a numbered choice against the current scene. Options
// authored with a scene link jump there; open-ended options get the next
// scene narrated.
func (s *Set) advanceScene(ctx context.Context, id, advID string, scene *adventure.Scene, choice string) (any, error) {
	n, err := strconv.Atoi(strings.TrimRight(strings.TrimSpace(choice), ".)"))
	if err != nil || n < 1 || n > len(scene.Options) {
		return "That is not one of the choices before you.\n\n" + renderScene(scene), nil
	}
	opt := scene.Options[n-1]
	if opt.Next != "" {
		if next := s.Adventures.Advance(advID, opt.Next); next != nil {
			return renderScene(next), nil
		}
	}
	return s.nextScene(ctx, id, advID, opt.Text)
}

// nextScene narrates what happens next from recent history, records it as the
// adventure's current scene, and pulls any numbered options out of the
// narration so the user can pick one.
func (s *Set) nextScene(ctx context.Context, id, advID, chose string) (any, error) {
	recent := s.Memories.History(id)
	if chose != "" {
		recent = append(recent, memory.Message{Role: "user", Content: "I choose: " + chose})
	}
	narration, err := s.Completer.Complete(ctx, llm.BuildAdventureContinuationPrompt(recent))
	if err != nil {
		return nil, fmt.Errorf("narrating next scene: %w", err)
	}
	narration = strings.TrimSpace(narration)

	scene := adventure.Scene{Description: narration, Options: extractOptions(narration)}
	if _, err := s.Adventures.AddScene(advID, scene); err != nil {
		s.logger().Error("recording scene", "adventure_id", advID, "error", err)
	}
	if len(scene.Options) == 0 && !strings.Contains(narration, "**What will you do?**") {
		narration += "\n\n**What would you like to do now?**"
	}
	return narration, nil
}

var optionLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)

// extractOptions pulls numbered list lines out of narration. Generated
// scenes get their options from here; authored scenes carry them directly.
func extractOptions(text string) []adventure.Option {
	var opts []adventure.Option
	for _, m := range optionLineRe.FindAllStringSubmatch(text, -1) {
		opts = append(opts, adventure.Option{Text: strings.TrimSpace(m[1])})
	}
	return opts
}

// renderScene shows a scene and its choices, skipping the list when the
// narration already spells the options out.
func renderScene(scene *adventure.Scene) string {
	desc := strings.TrimSpace(scene.Description)
	if desc == "" {
		desc = "You continue your adventure..."
	}
	if len(scene.Options) == 0 {
		return desc + "\n\n**What would you like to do now?**"
	}
	if len(extractOptions(desc)) >= len(scene.Options) {
		return desc
	}
	var b strings.Builder
	b.WriteString(desc)
	b.WriteString("\n\n**What will you do?**\n")
	for i, opt := range scene.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt.Text)
	}
	return strings.TrimSpace(b.String())
}

// DisplayProfile renders the character sheet, current status and active
// adventures.
func (s *Set) DisplayProfile(ctx context.Context, args map[string]any) (any, error) {
	id, err := userID(args)
	if err != nil {
		return nil, err
	}
	if !s.Profiles.HasCharacter(id) {
		intro, err := s.CreateCharacter(ctx, args)
		if err != nil {
			return nil, err
		}
		return "You don't have a character yet. Let's create one first.\n\n" + intro.(string), nil
	}
	prof := s.Profiles.Load(id)
	sheet := prof.CharacterSheet

	var b strings.Builder
	b.WriteString(textutil.FormatSheet(textutil.Sheet{
		Name:  sheet.Name,
		Race:  sheet.Race,
		Class: sheet.Class,
		Level: sheet.Level,
		Stats: map[string]int{
			"strength":     sheet.Stats.Strength,
			"dexterity":    sheet.Stats.Dexterity,
			"constitution": sheet.Stats.Constitution,
			"intelligence": sheet.Stats.Intelligence,
			"wisdom":       sheet.Stats.Wisdom,
			"charisma":     sheet.Stats.Charisma,
		},
		Skills:    sheet.Skills,
		Inventory: sheet.Inventory,
		Backstory: sheet.Backstory,
	}))

	if len(prof.DynamicAttributes) > 0 {
		b.WriteString("\n\n## Current Status\n")
		for _, attr := range sortedKeys(prof.DynamicAttributes) {
			fmt.Fprintf(&b, "- **%s:** %v\n", attr, prof.DynamicAttributes[attr])
		}
	}
	if active := s.Adventures.ActiveFor(id); len(active) > 0 {
		b.WriteString("\n## Active Adventures\n")
		for _, adv := range active {
			title := adv.Title
			if title == "" {
				title = "Untitled Adventure"
			}
			fmt.Fprintf(&b, "- **%s** (Started: %s)\n", title, adv.CreatedAt.Format("2006-01-02"))
		}
	}
	return b.String(), nil
}

// UpdateCharacter changes one sheet field. Without field and value it shows
// the current sheet and asks what to change.
func (s *Set) UpdateCharacter(ctx context.Context, args map[string]any) (any, error) {
	id, err := userID(args)
	if err != nil {
		return nil, err
	}
	if !s.Profiles.HasCharacter(id) {
		intro, err := s.CreateCharacter(ctx, args)
		if err != nil {
			return nil, err
		}
		return "You don't have a character yet. Let's create one first.\n\n" + intro.(string), nil
	}
	field, _ := args["field"].(string)
	value, _ := args["value"].(string)
	if field == "" || value == "" {
		sheet := s.Profiles.Load(id).CharacterSheet
		return fmt.Sprintf(
			"**Current Character Information:**\n- **name**: %s\n- **race**: %s\n- **class**: %s\n- **level**: %d\n\n"+
				"What would you like to update? Please use the format: `field: new value`\n"+
				"For example: `name: Aragorn` or `class: Ranger`",
			sheet.Name, sheet.Race, sheet.Class, sheet.Level), nil
	}
	if err := s.Profiles.UpdateCharacterField(id, field, value); err != nil {
		return nil, fmt.Errorf("updating %s: %w", field, err)
	}
	return fmt.Sprintf("Your character's %s has been updated to: %s", field, value), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Set) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
