// Package command implements the chat commands Sentinel answers: link, whois and quarantine.
//
// Every handler returns a two-phase Response. The Ack must reach the platform
// within AckDeadline; slow store or roster work belongs in Followup, whose Reply
// is delivered afterwards as a follow-up message.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AckDeadline is the platform's limit for acknowledging an interaction.
const AckDeadline = 3 * time.Second

const messageServerError = "A server error occurred. Try again later."

// ErrUnknownCommand is returned when no handler is registered under the invoked name.
var ErrUnknownCommand = errors.New("unknown command")

// Option describes the single string argument a command takes.
type Option struct {
	Name        string
	Description string
	Required    bool
}

// Definition is what gets registered with the platform.
type Definition struct {
	Name        string
	Description string
	Option      Option
}

// Invoker is the platform identity that ran the command, with its roles in the invoking guild.
type Invoker struct {
	ID       string
	Username string
	Roles    []string
}

// Invocation is one command interaction.
type Invocation struct {
	Command string
	Option  string
	Invoker Invoker
	GuildID string // empty outside a guild
}

// Reply is a message sent back to the invoker.
type Reply struct {
	Content   string
	Ephemeral bool
}

// Ack is the first, deadline-bound answer. Either Reply is set (an immediate
// final answer) or Deferred is true and the real answer follows.
type Ack struct {
	Deferred  bool
	Ephemeral bool
	Reply     *Reply
}

// Response is the two-phase result of a handler. Followup is nil for immediate replies.
type Response struct {
	Ack      Ack
	Followup func(ctx context.Context) Reply
}

// Handler is the capability a command registers with the Dispatcher.
type Handler interface {
	Definition() Definition
	Handle(ctx context.Context, inv Invocation) Response
}

// Immediate builds a response that answers within the acknowledgment and does nothing after.
func Immediate(content string, ephemeral bool) Response {
	return Response{Ack: Ack{Ephemeral: ephemeral, Reply: &Reply{Content: content, Ephemeral: ephemeral}}}
}

// Deferred builds a response that acknowledges first and answers with fn's reply.
func Deferred(ephemeral bool, fn func(ctx context.Context) Reply) Response {
	return Response{
		Ack: Ack{Deferred: true, Ephemeral: ephemeral},
		Followup: func(ctx context.Context) Reply {
			r := fn(ctx)
			r.Ephemeral = ephemeral
			return r
		},
	}
}

// Dispatcher routes invocations to handlers by command name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a Dispatcher with the given handlers registered.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		d.Register(h)
	}
	return d
}

// Register adds h, replacing any handler with the same name.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.Definition().Name] = h
}

// Definitions lists the registered commands sorted by name.
func (d *Dispatcher) Definitions() []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	defs := make([]Definition, 0, len(d.handlers))
	for _, h := range d.handlers {
		defs = append(defs, h.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch hands inv to its handler. A panicking handler yields a generic error reply.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (resp Response, err error) {
	d.mu.RLock()
	h, ok := d.handlers[inv.Command]
	d.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Command)
	}

	defer func() {
		if r := recover(); r != nil {
			resp = Immediate(messageServerError, true)
			err = fmt.Errorf("command %s panicked: %v", inv.Command, r)
		}
	}()
	return h.Handle(ctx, inv), nil
}

// RunFollowup runs resp.Followup under its own budget, recovering panics into a
// generic error reply. It reports false when there is nothing to follow up.
func RunFollowup(ctx context.Context, resp Response, budget time.Duration) (reply Reply, ok bool) {
	if resp.Followup == nil {
		return Reply{}, false
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			reply = Reply{Content: messageServerError, Ephemeral: resp.Ack.Ephemeral}
			ok = true
		}
	}()
	return resp.Followup(ctx), true
}
