// Package chat drives a conversation turn: record the user's message, recall
// and trim memory, consult the narrator model, and either dispatch the
// function call it asked for or deliver its reply in naturally paced parts.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Channel is the outbound side of wherever the conversation happens. A
// platform client implements it; tests use a recorder.
type Channel interface {
	// Send delivers one message to the user.
	Send(ctx context.Context, text string) error
	// Typing signals that a reply is being composed. Implementations that
	// cannot show an indicator return nil.
	Typing(ctx context.Context) error
}

// ConsoleChannel writes replies to a writer, one message per line block.
type ConsoleChannel struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewConsoleChannel(w io.Writer) *ConsoleChannel {
	return &ConsoleChannel{w: bufio.NewWriter(w)}
}

func (c *ConsoleChannel) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "%s\n\n", text); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *ConsoleChannel) Typing(context.Context) error { return nil }
