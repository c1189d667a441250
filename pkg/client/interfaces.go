package client

import (
	"context"

	"github.com/aeolun/irctunnel/pkg/protocol"
)

// StreamHandler receives inbound data from a Transport. The Supervisor
// hands one to every Connect call.
type StreamHandler interface {
	// HandleChunk is called with raw text in arrival order, from a single
	// goroutine. Chunks carry no framing guarantee.
	HandleChunk(chunk string)
	// TransportClosed is called once when the stream ends for any reason.
	TransportClosed(err error)
}

// Transport is the physical link to the gateway. Only the Supervisor opens
// and closes it. This allows for mocking in tests while WSTransport is the
// real implementation.
type Transport interface {
	// Connect opens the stream and returns once it is usable. Inbound data
	// is delivered to h until TransportClosed is called.
	Connect(ctx context.Context, h StreamHandler) error
	// Disconnect asks the transport to close. Closure is confirmed through
	// StreamHandler.TransportClosed, possibly after Disconnect returns.
	Disconnect(ctx context.Context) error
	// Send writes one protocol line. The transport adds any framing.
	Send(ctx context.Context, line string) error
}

// Sink is the presentation side. Calls arrive in stream order; the core
// keeps no reference to the values it passes.
type Sink interface {
	OnMessage(msg protocol.Message)
	OnCTCP(ctcp protocol.CTCPMessage, msg protocol.Message)
	OnControl(c protocol.Control)
	OnStateChange(u StateUpdate)
}
