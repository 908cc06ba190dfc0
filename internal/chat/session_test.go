package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/memory"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
	"github.com/NolanChai/discord-gm/internal/textutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects everything sent to the channel.
type recorder struct {
	sent   []string
	typing int
}

func (r *recorder) Send(_ context.Context, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

func (r *recorder) Typing(context.Context) error {
	r.typing++
	return nil
}

// fixedCompleter returns the same response for every prompt.
type fixedCompleter struct {
	response string
	prompts  []string
}

func (c *fixedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.response, nil
}

type stubCreation struct {
	replies []string
}

// stubArchive serves canned long-term memories and records queries.
type stubArchive struct {
	hits    []memory.Memory
	recent  []memory.Memory
	queries []string
}

func (a *stubArchive) Add(context.Context, string, string, string, string) (string, error) {
	return "id", nil
}

func (a *stubArchive) Search(_ context.Context, _, query string, _ int) ([]memory.Memory, error) {
	a.queries = append(a.queries, query)
	return a.hits, nil
}

func (a *stubArchive) Recent(context.Context, string, int) ([]memory.Memory, error) {
	return a.recent, nil
}

func (s *stubCreation) HandleCreationResponse(_ context.Context, _, content string) (string, error) {
	s.replies = append(s.replies, content)
	return "And your class?", nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, response string) (*Session, *fixedCompleter, *dispatch.Dispatcher) {
	t.Helper()
	dir := t.TempDir()
	logger := quiet()
	completer := &fixedCompleter{response: response}
	dispatcher := dispatch.NewDispatcher(dispatch.WithLogger(logger))
	s := &Session{
		Profiles:   profile.NewManager(dir, logger),
		States:     state.NewManager(dir, logger),
		Memories:   memory.NewManager(dir, 20, logger),
		Completer:  completer,
		Extractor:  dispatch.NewExtractor(logger),
		Dispatcher: dispatcher,
		Catalog:    dispatch.NewCatalog(),
		Pacing:     nil, // no artificial delays in tests
		Logger:     logger,
		Sleep:      func(context.Context, time.Duration) {},
	}
	return s, completer, dispatcher
}

func TestPlainReplyIsDelivered(t *testing.T) {
	s, _, _ := newTestSession(t, "The threads hum softly tonight.")
	ch := &recorder{}

	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello there", ch))
	require.Equal(t, []string{"The threads hum softly tonight."}, ch.sent)

	// Both turns recorded.
	hist := s.Memories.History("42")
	require.Len(t, hist, 2)
	assert.Equal(t, "user", hist[0].Role)
	assert.Equal(t, "assistant", hist[1].Role)

	assert.True(t, s.Profiles.Load("42").Introduced)
}

func TestMultiParagraphReplySplit(t *testing.T) {
	s, _, _ := newTestSession(t, "First the mist.\n\nThen the bell.")
	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello", ch))
	assert.Equal(t, []string{"First the mist.", "Then the bell."}, ch.sent)
}

func TestExtractedCallIsDispatched(t *testing.T) {
	response := "Very well.\n\n" + dispatch.MarkerStart + `{"name": "display_profile", "args": {}}` + dispatch.MarkerEnd
	s, _, d := newTestSession(t, response)

	var gotUser string
	d.Register("display_profile", func(_ context.Context, args map[string]any) (any, error) {
		gotUser, _ = args["user_id"].(string)
		return "# Borin", nil
	})

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello", ch))
	assert.Equal(t, "42", gotUser)
	assert.Equal(t, []string{"# Borin"}, ch.sent)
}

func TestKeywordOverrideSkipsModel(t *testing.T) {
	s, completer, d := newTestSession(t, "should not be used")
	called := false
	d.Register("start_adventure", func(context.Context, map[string]any) (any, error) {
		called = true
		return "The gates open.", nil
	})

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "I want an adventure!", ch))
	assert.True(t, called)
	assert.Empty(t, completer.prompts)
	assert.Equal(t, []string{"The gates open."}, ch.sent)
}

func TestAdventureKeywordForcedWhenModelIgnoresIt(t *testing.T) {
	// Outside the menu state the trigger shortcut does not apply, but a user
	// asking for adventure still gets one when the reply ignores the word.
	s, _, d := newTestSession(t, "The stars are quiet tonight.")
	s.States.Set("42", state.Introduction)
	called := false
	d.Register("start_adventure", func(context.Context, map[string]any) (any, error) {
		called = true
		return "So begins the tale.", nil
	})

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "take me on an adventure", ch))
	assert.True(t, called)
	assert.Equal(t, []string{"So begins the tale."}, ch.sent)
}

func TestAdventureChoiceRoutedToContinue(t *testing.T) {
	s, completer, d := newTestSession(t, "unused")
	s.States.Set("42", state.Adventure)
	s.States.UpdateMetadata("42", map[string]any{"current_adventure": "adv1"})

	var got map[string]any
	d.Register("continue_adventure", func(_ context.Context, args map[string]any) (any, error) {
		got = args
		return "The left passage swallows your torchlight.", nil
	})

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "2.", ch))
	assert.Empty(t, completer.prompts)
	require.NotNil(t, got)
	assert.Equal(t, "2", got["choice"])
	assert.Equal(t, "42", got["user_id"])
	assert.Equal(t, []string{"The left passage swallows your torchlight."}, ch.sent)
}

func TestNumberWithoutAdventureGoesToModel(t *testing.T) {
	s, completer, _ := newTestSession(t, "Numbers, curious.")
	s.States.Set("42", state.Adventure)

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "2", ch))
	require.Len(t, completer.prompts, 1)
	assert.Equal(t, []string{"Numbers, curious."}, ch.sent)
}

func TestStageDirectionsStrippedFromNarration(t *testing.T) {
	s, _, _ := newTestSession(t, "(rolls dice) The path darkens ahead.\n\n*leans closer* Step carefully.")
	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello", ch))
	assert.Equal(t, []string{"The path darkens ahead.", "Step carefully."}, ch.sent)
}

func TestRelevantMemoriesRecalledForPrompt(t *testing.T) {
	s, completer, _ := newTestSession(t, "reply")
	arch := &stubArchive{hits: []memory.Memory{{Summary: "slew the wyrm of Vel"}}}
	s.Archive = arch

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "tell me of the wyrm", ch))
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "slew the wyrm of Vel")
	assert.Equal(t, []string{"tell me of the wyrm"}, arch.queries)
}

func TestMemoryRecallFallsBackToRecent(t *testing.T) {
	s, completer, _ := newTestSession(t, "reply")
	s.Archive = &stubArchive{recent: []memory.Memory{{Summary: "bought rope at the bazaar"}}}

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello", ch))
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "bought rope at the bazaar")
}

func TestHandlerFailureDegradesToApology(t *testing.T) {
	s, _, d := newTestSession(t, "ok")
	d.Register("start_adventure", func(context.Context, map[string]any) (any, error) {
		return nil, assert.AnError
	})
	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "adventure time", ch))
	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0], "something went wrong")
}

func TestCreationStateRoutesToFlow(t *testing.T) {
	s, completer, _ := newTestSession(t, "unused")
	flow := &stubCreation{}
	s.Creation = flow
	s.States.Set("42", state.CharacterCreation)

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "Borin", ch))
	assert.Equal(t, []string{"Borin"}, flow.replies)
	assert.Equal(t, []string{"And your class?"}, ch.sent)
	assert.Empty(t, completer.prompts)
}

func TestPromptCarriesStateAndHistory(t *testing.T) {
	s, completer, _ := newTestSession(t, "reply")
	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello hello", ch))

	require.Len(t, completer.prompts, 1)
	prompt := completer.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "<|im_start|>system\n"))
	assert.Contains(t, prompt, "hello hello")
	assert.True(t, strings.HasSuffix(prompt, "<|im_start|>assistant\n"))
}

func TestEmptyMessageIgnored(t *testing.T) {
	s, completer, _ := newTestSession(t, "reply")
	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "   ", ch))
	assert.Empty(t, ch.sent)
	assert.Empty(t, completer.prompts)
}

func TestPacingTypesBeforeSending(t *testing.T) {
	s, _, _ := newTestSession(t, "one.\n\ntwo.")
	s.Pacing = textutil.NewPacing()
	var slept int
	s.Sleep = func(context.Context, time.Duration) { slept++ }

	ch := &recorder{}
	require.NoError(t, s.HandleMessage(context.Background(), "42", "hello", ch))
	require.Len(t, ch.sent, 2)
	// Reading the message, a typing delay per segment, one inter-segment pause.
	assert.Equal(t, 4, slept)
	assert.GreaterOrEqual(t, ch.typing, 2)
}
