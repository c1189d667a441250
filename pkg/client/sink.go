package client

import (
	"context"

	"github.com/aeolun/irctunnel/pkg/protocol"
)

// EventKind tags an Event.
type EventKind int

const (
	EventMessage EventKind = iota
	EventCTCP
	EventControl
	EventState
)

// Event is one sink call carried over a channel. Only the fields for Kind
// are set.
type Event struct {
	Kind    EventKind
	Message protocol.Message
	CTCP    protocol.CTCPMessage
	Control protocol.Control
	State   StateUpdate
}

// ChanSink adapts the Sink interface to a typed channel so a presentation
// layer can consume events from its own goroutine in stream order.
type ChanSink struct {
	ctx    context.Context
	events chan Event
}

// NewChanSink creates a sink with the given buffer. Sends block when the
// buffer is full until ctx is done, after which events are dropped.
func NewChanSink(ctx context.Context, buffer int) *ChanSink {
	return &ChanSink{
		ctx:    ctx,
		events: make(chan Event, buffer),
	}
}

// Events returns the receive side.
func (c *ChanSink) Events() <-chan Event {
	return c.events
}

func (c *ChanSink) OnMessage(msg protocol.Message) {
	c.push(Event{Kind: EventMessage, Message: msg})
}

func (c *ChanSink) OnCTCP(ctcp protocol.CTCPMessage, msg protocol.Message) {
	c.push(Event{Kind: EventCTCP, CTCP: ctcp, Message: msg})
}

func (c *ChanSink) OnControl(ctl protocol.Control) {
	c.push(Event{Kind: EventControl, Control: ctl})
}

func (c *ChanSink) OnStateChange(u StateUpdate) {
	c.push(Event{Kind: EventState, State: u})
}

func (c *ChanSink) push(e Event) {
	select {
	case c.events <- e:
	case <-c.ctx.Done():
	}
}
