package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWSPort  = "8080"
	defaultWSSPort = "443"
	defaultWSPath  = "/irc"

	writeWait  = 10 * time.Second
	closeGrace = 2 * time.Second
)

var ErrTransportClosed = errors.New("transport closed")

// WSTransport carries the tunnel over a websocket to the gateway. Each
// inbound text frame is handed to the StreamHandler as one chunk; each
// outbound line is written as one text frame.
type WSTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool
	done    chan struct{}

	writeMu sync.Mutex

	// Traffic counters (payload bytes on the wire)
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// NewWSTransport creates a transport for a ws:// or wss:// gateway address.
// A bare host or host:port is treated as ws://. origin, if set, is sent as
// the Origin header.
func NewWSTransport(addr, origin string) (*WSTransport, error) {
	u, err := parseGatewayAddress(addr)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	return &WSTransport{
		url:    u,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets a logger for transport events.
func (t *WSTransport) SetLogger(logger *zap.Logger) {
	t.logger = logger
}

// URL returns the normalized gateway URL.
func (t *WSTransport) URL() string {
	return t.url
}

// Connect dials the gateway and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context, h StreamHandler) error {
	t.mu.Lock()
	if t.conn != nil {
		if !t.closing {
			t.mu.Unlock()
			return ErrAlreadyConnected
		}
		// A previous stream is still draining its close handshake.
		old, done := t.conn, t.done
		t.mu.Unlock()
		old.Close()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		t.mu.Unlock()
	}

	t.logger.Debug("dialing gateway", zap.String("url", t.url))
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", t.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.closing = false
	t.done = done
	t.mu.Unlock()

	go t.readLoop(conn, h, done)
	return nil
}

// readLoop feeds text frames to h until the socket fails or closes.
func (t *WSTransport) readLoop(conn *websocket.Conn, h StreamHandler, done chan struct{}) {
	defer close(done)

	var buf strings.Builder
	for {
		kind, r, err := conn.NextReader()
		if err != nil {
			t.finish(conn, h, err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		buf.Reset()
		if _, err := io.Copy(&buf, &countingReader{r: r, counter: &t.bytesReceived}); err != nil {
			t.finish(conn, h, err)
			return
		}
		h.HandleChunk(buf.String())
	}
}

// finish releases conn and reports the closure. A close we asked for, or a
// normal close frame from the gateway, is reported with a nil error.
func (t *WSTransport) finish(conn *websocket.Conn, h StreamHandler, err error) {
	t.mu.Lock()
	requested := t.closing
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()

	if requested || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = nil
	}
	t.logger.Debug("gateway stream ended", zap.Error(err))
	h.TransportClosed(err)
}

// Disconnect sends a close frame and gives the gateway closeGrace to
// answer before the read loop gives up. It does not wait; closure is
// reported through StreamHandler.TransportClosed.
func (t *WSTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	t.closing = true
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, deadline)
	t.writeMu.Unlock()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		conn.Close()
		return err
	}
	return conn.SetReadDeadline(time.Now().Add(closeGrace))
}

// Send writes one line as a text frame, adding the CRLF terminator.
func (t *WSTransport) Send(ctx context.Context, line string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	cw := &countingWriter{w: w, counter: &t.bytesSent}
	if _, err := io.WriteString(cw, line+"\r\n"); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// BytesSent returns the total payload bytes sent.
func (t *WSTransport) BytesSent() uint64 {
	return t.bytesSent.Load()
}

// BytesReceived returns the total payload bytes received.
func (t *WSTransport) BytesReceived() uint64 {
	return t.bytesReceived.Load()
}

// countingReader wraps an io.Reader and counts bytes read using atomic counter
type countingReader struct {
	r       io.Reader
	counter *atomic.Uint64
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	if n > 0 && cr.counter != nil {
		cr.counter.Add(uint64(n))
	}
	return n, err
}

// countingWriter wraps an io.Writer and counts bytes written using atomic counter
type countingWriter struct {
	w       io.Writer
	counter *atomic.Uint64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.counter != nil {
		cw.counter.Add(uint64(n))
	}
	return n, err
}

// parseGatewayAddress normalizes addr into a websocket URL.
func parseGatewayAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("gateway address is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "ws://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid gateway address %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	var defaultPort string
	switch scheme {
	case "ws", "http":
		scheme, defaultPort = "ws", defaultWSPort
	case "wss", "https":
		scheme, defaultPort = "wss", defaultWSSPort
	default:
		return "", fmt.Errorf("unsupported gateway scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("invalid gateway address %q: missing host", raw)
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	path := u.Path
	if path == "" || path == "/" {
		path = defaultWSPath
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(host, port),
		Path:     path,
		RawQuery: u.RawQuery,
	}
	return out.String(), nil
}
