package dispatch

import (
	"context"
	"log/slog"
	"maps"
	"sync"
)

// HandlerFunc performs one named action. Args is the merged keyword set:
// everything the model supplied plus everything the call site injected.
// Handlers block until done; callers that need a timeout impose their own
// deadline on ctx.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher routes parsed calls to registered handlers. The registry is
// populated once at startup and read-mostly afterwards; Dispatch itself is
// stateless across calls and safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	order    []string
	opts     dispatcherOptions
}

// NewDispatcher creates a Dispatcher with the given options.
func NewDispatcher(opts ...Option) *Dispatcher {
	o := dispatcherOptions{
		logger:        slog.Default(),
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		opts:     o,
	}
}

// Register adds a handler under name. Registering an existing name replaces
// the previous handler and keeps its original position in Names().
func (d *Dispatcher) Register(name string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; !exists {
		d.order = append(d.order, name)
	}
	d.handlers[name] = h
	d.opts.logger.Info("registered function", "function", name)
}

// Names returns registered names in insertion order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Dispatch resolves call.Name and invokes the handler with the merged
// argument set. inject values win over parsed args on key collision so a
// manipulated model reply cannot override call-site facts such as the acting
// user's identity.
//
// Every failure mode comes back as a nil result plus a sentinel error
// (ErrMalformedCall, ErrUnknownFunction, or a HandlerError); Dispatch never
// panics out, even when the handler does.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call, inject map[string]any) (any, error) {
	if call.Name == "" {
		d.opts.logger.Warn("dispatch of call without a name")
		return nil, ErrMalformedCall
	}
	d.mu.RLock()
	h, ok := d.handlers[call.Name]
	d.mu.RUnlock()
	if !ok {
		d.opts.logger.Warn("unknown function", "function", call.Name)
		return nil, ErrUnknownFunction
	}

	merged := make(map[string]any, len(call.Args)+len(inject))
	maps.Copy(merged, call.Args)
	maps.Copy(merged, inject)

	d.opts.logger.Info("dispatching function", "function", call.Name)
	res, err := d.invoke(ctx, h, merged)
	if err != nil {
		d.opts.logger.Error("function failed", "function", call.Name, "error", err)
		return nil, &HandlerError{Function: call.Name, Err: err}
	}
	return res, nil
}

func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, args map[string]any) (res any, err error) {
	if d.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res = nil
				err = &panicError{p: p}
			}
		}()
	}
	return h(ctx, args)
}
