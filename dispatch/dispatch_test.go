package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietDispatcher(opts ...Option) *Dispatcher {
	quiet := WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewDispatcher(append([]Option{quiet}, opts...)...)
}

func TestDispatcher_Dispatch_MergesContext(t *testing.T) {
	d := quietDispatcher()
	var got map[string]any
	d.Register("start_adventure", func(_ context.Context, args map[string]any) (any, error) {
		got = args
		return "ok", nil
	})
	res, err := d.Dispatch(context.Background(),
		Call{Name: "start_adventure", Args: map[string]any{"mentions": []any{}}},
		map[string]any{"user_id": "42"},
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, "42", got["user_id"])
	assert.Equal(t, []any{}, got["mentions"])
}

func TestDispatcher_Dispatch_ContextWinsOnCollision(t *testing.T) {
	d := quietDispatcher()
	var got map[string]any
	d.Register("display_profile", func(_ context.Context, args map[string]any) (any, error) {
		got = args
		return nil, nil
	})
	// A hostile reply tries to act as another user; the injected identity wins.
	_, err := d.Dispatch(context.Background(),
		Call{Name: "display_profile", Args: map[string]any{"user_id": "999", "verbose": true}},
		map[string]any{"user_id": "42"},
	)
	require.NoError(t, err)
	assert.Equal(t, "42", got["user_id"])
	assert.Equal(t, true, got["verbose"])
}

func TestDispatcher_Dispatch_UnknownFunction(t *testing.T) {
	d := quietDispatcher()
	res, err := d.Dispatch(context.Background(), Call{Name: "nonexistent_fn", Args: map[string]any{}}, nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestDispatcher_Dispatch_EmptyName(t *testing.T) {
	d := quietDispatcher()
	res, err := d.Dispatch(context.Background(), Call{}, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrMalformedCall)
}

func TestDispatcher_Dispatch_HandlerError(t *testing.T) {
	d := quietDispatcher()
	boom := errors.New("dice jammed")
	d.Register("roll", func(_ context.Context, _ map[string]any) (any, error) {
		return nil, boom
	})
	res, err := d.Dispatch(context.Background(), Call{Name: "roll"}, nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.ErrorIs(t, err, boom)
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "roll", he.Function)
}

func TestDispatcher_Dispatch_PanicRecovery(t *testing.T) {
	d := quietDispatcher()
	d.Register("explode", func(_ context.Context, _ map[string]any) (any, error) {
		panic("oops")
	})
	res, err := d.Dispatch(context.Background(), Call{Name: "explode"}, nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.Contains(t, err.Error(), "panic: oops")
}

func TestDispatcher_Dispatch_InvokedExactlyOnce(t *testing.T) {
	d := quietDispatcher()
	calls := 0
	d.Register("count", func(_ context.Context, _ map[string]any) (any, error) {
		calls++
		return nil, nil
	})
	_, err := d.Dispatch(context.Background(), Call{Name: "count"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDispatcher_Register_OverwriteKeepsOrder(t *testing.T) {
	d := quietDispatcher()
	nop := func(_ context.Context, _ map[string]any) (any, error) { return nil, nil }
	d.Register("a", nop)
	d.Register("b", nop)
	d.Register("a", func(_ context.Context, _ map[string]any) (any, error) { return "v2", nil })
	assert.Equal(t, []string{"a", "b"}, d.Names())
	res, err := d.Dispatch(context.Background(), Call{Name: "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", res)
}

func TestDispatcher_ConcurrentDispatch(t *testing.T) {
	d := quietDispatcher()
	d.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["user_id"], nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Dispatch(context.Background(), Call{Name: "echo"}, map[string]any{"user_id": "u"})
			assert.NoError(t, err)
			assert.Equal(t, "u", res)
		}()
	}
	wg.Wait()
}

func TestDispatcher_Dispatch_DoesNotMutateCallArgs(t *testing.T) {
	d := quietDispatcher()
	d.Register("nop", func(_ context.Context, _ map[string]any) (any, error) { return nil, nil })
	args := map[string]any{"user_id": "model-supplied"}
	_, err := d.Dispatch(context.Background(), Call{Name: "nop", Args: args}, map[string]any{"user_id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "model-supplied", args["user_id"])
}
