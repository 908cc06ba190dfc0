package chat

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/llm"
	"github.com/NolanChai/discord-gm/internal/memory"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
	"github.com/NolanChai/discord-gm/internal/textutil"
)

// Completer is the slice of the model client a Session needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CreationFlow consumes answers while a user is mid character creation.
type CreationFlow interface {
	HandleCreationResponse(ctx context.Context, userID, content string) (string, error)
}

// MemoryStore is the slice of the long-term archive a Session needs: storing
// summaries and recalling them for prompts. Satisfied by memory.Archive.
type MemoryStore interface {
	Add(ctx context.Context, userID, kind, summary, source string) (string, error)
	Search(ctx context.Context, userID, query string, limit int) ([]memory.Memory, error)
	Recent(ctx context.Context, userID string, limit int) ([]memory.Memory, error)
}

// Session owns one user-facing conversation loop.
type Session struct {
	Profiles   *profile.Manager
	States     *state.Manager
	Memories   *memory.Manager
	Archive    MemoryStore
	Completer  Completer
	Extractor  *dispatch.Extractor
	Dispatcher *dispatch.Dispatcher
	Catalog    *dispatch.Catalog
	Creation   CreationFlow
	Pacing     *textutil.Pacing
	Logger     *slog.Logger

	// Sleep is swapped out in tests. Nil means SleepContext.
	Sleep func(ctx context.Context, d time.Duration)
}

var (
	adventureKeywords = []string{"adventure", "quest", "journey"}
	characterKeywords = []string{"character", "create character"}
	profileKeywords   = []string{"profile", "show profile", "display profile", "character sheet", "stats"}
)

// choiceRe matches a bare numbered reply like "2", "2." or "2)".
var choiceRe = regexp.MustCompile(`^(\d{1,2})[.)]?$`)

// HandleMessage runs one conversation turn for the user's message. Model and
// handler failures degrade to an apology on the channel rather than an error;
// only channel delivery failures propagate.
func (s *Session) HandleMessage(ctx context.Context, userID, content string, ch Channel) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	logger := s.logger().With("user_id", userID)

	s.Memories.Append(userID, "user", content)
	s.States.UpdateMetadata(userID, map[string]any{"last_active": time.Now().Format(time.RFC3339)})
	s.consolidateMemory(ctx, userID)

	current := s.States.Get(userID)
	lower := textutil.Normalize(content)

	// Mid creation, answers feed the step machine instead of the narrator.
	if current == state.CharacterCreation && s.Creation != nil {
		reply, err := s.Creation.HandleCreationResponse(ctx, userID, content)
		if err != nil {
			logger.Error("character creation step failed", "error", err)
			return ch.Send(ctx, "Oops, something went wrong. Please try again later.")
		}
		return s.sendInParts(ctx, userID, reply, ch)
	}

	// A bare number mid-adventure is the user picking one of the current
	// scene's options.
	if current == state.Adventure {
		if m := choiceRe.FindStringSubmatch(content); m != nil {
			if advID, _ := s.States.Metadata(userID)["current_adventure"].(string); advID != "" {
				logger.Info("adventure choice", "choice", m[1])
				return s.dispatchCall(ctx, userID, dispatch.Call{
					Name: "continue_adventure",
					Args: map[string]any{"choice": m[1]},
				}, ch)
			}
		}
	}

	// Trigger words bypass the model so the core verbs work even when it
	// refuses to emit a call.
	if current == state.Menu {
		if name, args, ok := keywordOverride(lower); ok {
			logger.Info("keyword override", "function", name)
			return s.dispatchCall(ctx, userID, dispatch.Call{Name: name, Args: args}, ch)
		}
	}

	prompt := s.buildPrompt(ctx, userID, current, content)
	if s.Pacing != nil {
		s.sleep(ctx, s.Pacing.ReadingDelay(content))
	}
	_ = ch.Typing(ctx)
	response, err := s.Completer.Complete(ctx, prompt)
	if err != nil {
		logger.Error("model turn failed", "error", err)
		return ch.Send(ctx, "Oops, something went wrong. Please try again later.")
	}

	if call, ok := s.Extractor.Extract(response); ok {
		return s.dispatchCall(ctx, userID, call, ch)
	}
	response = cleanNarration(response)

	// A user asking for adventure should get one even if the model chatted
	// about something else entirely.
	if strings.Contains(lower, "adventure") && !strings.Contains(strings.ToLower(response), "adventure") {
		logger.Info("keyword override", "function", "start_adventure")
		return s.dispatchCall(ctx, userID, dispatch.Call{Name: "start_adventure", Args: map[string]any{}}, ch)
	}

	if err := s.sendInParts(ctx, userID, response, ch); err != nil {
		return err
	}
	if !s.Profiles.Load(userID).Introduced {
		if err := s.Profiles.MarkIntroduced(userID); err != nil {
			logger.Error("marking introduced", "error", err)
		}
	}
	return nil
}

func keywordOverride(lower string) (string, map[string]any, bool) {
	for _, kw := range adventureKeywords {
		if strings.Contains(lower, kw) {
			return "start_adventure", map[string]any{}, true
		}
	}
	for _, kw := range characterKeywords {
		if strings.Contains(lower, kw) {
			return "create_character", map[string]any{}, true
		}
	}
	for _, kw := range profileKeywords {
		if strings.Contains(lower, kw) {
			return "display_profile", map[string]any{}, true
		}
	}
	return "", nil, false
}

// buildPrompt assembles the model prompt for one turn. Long-term memories are
// recalled by relevance to the user's message, falling back to the newest
// ones when nothing matches.
func (s *Session) buildPrompt(ctx context.Context, userID, current, content string) string {
	prof := s.Profiles.Load(userID)

	var memories []string
	if s.Archive != nil {
		stored, err := s.Archive.Search(ctx, userID, content, 10)
		if err != nil {
			s.logger().Error("searching memories", "user_id", userID, "error", err)
		}
		if len(stored) == 0 {
			if stored, err = s.Archive.Recent(ctx, userID, 10); err != nil {
				s.logger().Error("recalling memories", "user_id", userID, "error", err)
			}
		}
		for _, m := range stored {
			memories = append(memories, m.Summary)
		}
	}

	var functions string
	if s.Catalog != nil {
		functions = s.Catalog.Describe()
	}
	system := llm.BuildSystemPrompt(llm.SystemPromptInput{
		State:     current,
		Profile:   prof,
		Memories:  memories,
		Functions: functions,
	})
	return llm.BuildFullPrompt(system, s.Memories.History(userID))
}

// dispatchCall executes a function call and sends its text result, if any.
// Handler failures are reported to the user, not returned.
func (s *Session) dispatchCall(ctx context.Context, userID string, call dispatch.Call, ch Channel) error {
	result, err := s.Dispatcher.Dispatch(ctx, call, map[string]any{"user_id": userID})
	if err != nil {
		s.logger().Error("function call failed", "user_id", userID, "function", call.Name, "error", err)
		return ch.Send(ctx, "Oops, something went wrong. Please try again later.")
	}
	text, ok := result.(string)
	if !ok || text == "" {
		return nil
	}
	return s.sendInParts(ctx, userID, text, ch)
}

// cleanNarration strips stage directions from plain narrative output, block
// by block so paragraph breaks survive splitting.
func cleanNarration(text string) string {
	var blocks []string
	for _, block := range strings.Split(text, "\n\n") {
		block = textutil.RemoveStageDirections(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// sendInParts splits a reply on blank lines and platform limits, records each
// part as an assistant turn, and paces delivery like a person typing.
func (s *Session) sendInParts(ctx context.Context, userID, text string, ch Channel) error {
	var segments []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		segments = append(segments, textutil.Split(block, textutil.MaxMessageLength)...)
	}

	previous := ""
	for i, segment := range segments {
		s.Memories.Append(userID, "assistant", segment)
		if i > 0 && s.Pacing != nil {
			s.sleep(ctx, s.Pacing.SegmentDelay(segment, previous))
		}
		if s.Pacing != nil {
			_ = ch.Typing(ctx)
			s.sleep(ctx, s.Pacing.TypingDelay(segment))
		}
		if err := ch.Send(ctx, segment); err != nil {
			return err
		}
		previous = segment
	}
	return nil
}

// consolidateMemory trims oversized short-term history and archives a model
// summary of what was dropped.
func (s *Session) consolidateMemory(ctx context.Context, userID string) {
	dropped := s.Memories.TrimIfNeeded(userID)
	if len(dropped) == 0 || s.Archive == nil {
		return
	}
	summary, err := s.Completer.Complete(ctx, llm.BuildSummarizationPrompt(dropped))
	if err != nil {
		s.logger().Error("summarizing trimmed history", "user_id", userID, "error", err)
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return
	}
	if _, err := s.Archive.Add(ctx, userID, "conversation", summary, "trim"); err != nil {
		s.logger().Error("archiving summary", "user_id", userID, "error", err)
	}
}

// Sweep consolidates oversized short-term histories for every known user.
// Run on a schedule so quiet users still get their history archived.
func (s *Session) Sweep(ctx context.Context) {
	seen := map[string]struct{}{}
	for _, st := range []string{state.Menu, state.Introduction, state.CharacterCreation, state.Adventure} {
		for _, id := range s.States.UsersIn(st) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			s.consolidateMemory(ctx, id)
		}
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(ctx, d)
		return
	}
	SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
