package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aeolun/irctunnel/pkg/metrics"
	"github.com/aeolun/irctunnel/pkg/protocol"
	"go.uber.org/zap"
)

// ConnectionState is the tunnel lifecycle state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected  // transport open, IRC registration pending
	StateRegistered // server accepted the handshake
)

var stateNames = []string{"disconnected", "connecting", "connected", "registered"}

func (s ConnectionState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	ErrAlreadyConnected   = errors.New("connection already active")
	ErrNotConnected       = errors.New("not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted, auto-reconnect disabled")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout")
	ErrSendAbandoned      = errors.New("paced send abandoned after registration changed")
	ErrConnectAborted     = errors.New("connect aborted by disconnect")
)

// TransportError is the typed failure returned when the transport or the
// handshake fails. The Supervisor is already Disconnected when it is returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StateUpdate describes one state transition.
type StateUpdate struct {
	From    ConnectionState
	To      ConnectionState
	Attempt int   // reconnect attempt index after the transition
	Err     error // cause of a transition to Disconnected, if any
}

// Policy holds the reconnect and heartbeat thresholds. Durations counted in
// ticks are whole seconds at the 1 Hz tick rate.
type Policy struct {
	AutoReconnect     bool
	FirstRetryHold    int // ticks to wait before attempt 2
	RetryHold         int // ticks to wait before attempts 3 and later
	MaxAttempts       int
	HeartbeatInterval int // ticks without HEARTBEAT before a soft close
	ConnectTimeout    time.Duration
	PacedSendDelay    time.Duration
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AutoReconnect:     true,
		FirstRetryHold:    5,
		RetryHold:         15,
		MaxAttempts:       10,
		HeartbeatInterval: 15,
		ConnectTimeout:    10 * time.Second,
		PacedSendDelay:    2 * time.Second,
	}
}

// holdBefore returns the ticks spent in Disconnected before attempt n.
func (p Policy) holdBefore(n int) int {
	switch n {
	case 1:
		return 1
	case 2:
		return p.FirstRetryHold
	default:
		return p.RetryHold
	}
}

// Snapshot is a copy of the supervisor's counters.
type Snapshot struct {
	State            ConnectionState
	AutoReconnect    bool
	ReconnectAttempt int
	ReconnectHold    int
	HeartbeatCount   int
	Epoch            uint64
}

// Supervisor owns the transport lifecycle. It drives the Framer and the Line
// Parser for inbound data and runs the reconnect and heartbeat policy on a
// 1 Hz tick.
type Supervisor struct {
	transport Transport
	sink      Sink
	session   *Session
	policy    Policy
	metrics   *metrics.Metrics
	logger    *zap.Logger
	location  *time.Location

	tickInterval time.Duration

	mu            sync.Mutex
	state         ConnectionState
	autoReconnect bool
	userHeld      bool // set by UserDisconnect, cleared by UserConnect
	attempt       int
	hold          int
	heartbeat     int
	generation    uint64 // bumped per Connect; stale stream callbacks are dropped
	framer        protocol.Framer

	dialMu  sync.Mutex
	pacedMu sync.Mutex
}

// NewSupervisor creates a Disconnected supervisor.
func NewSupervisor(transport Transport, sink Sink, session *Session, policy Policy) *Supervisor {
	s := &Supervisor{
		transport:     transport,
		sink:          sink,
		session:       session,
		policy:        policy,
		logger:        zap.NewNop(),
		location:      time.Local,
		tickInterval:  time.Second,
		state:         StateDisconnected,
		autoReconnect: policy.AutoReconnect,
	}
	return s
}

// SetLogger sets a logger for connection events.
func (s *Supervisor) SetLogger(logger *zap.Logger) {
	s.logger = logger.With(zap.String("session", s.session.ID()))
}

// SetMetrics attaches Prometheus collectors.
func (s *Supervisor) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	m.SetState(StateDisconnected.String(), stateNames)
}

// SetLocation sets the zone used for message display stamps.
func (s *Supervisor) SetLocation(loc *time.Location) {
	s.location = loc
}

// Session returns the session context.
func (s *Supervisor) Session() *Session {
	return s.session
}

// SetAutoReconnect toggles the reconnect policy. It does not reset the
// attempt index.
func (s *Supervisor) SetAutoReconnect(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoReconnect = enabled
}

// Snapshot returns the current counters.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:            s.state,
		AutoReconnect:    s.autoReconnect,
		ReconnectAttempt: s.attempt,
		ReconnectHold:    s.hold,
		HeartbeatCount:   s.heartbeat,
		Epoch:            s.session.Epoch(),
	}
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserConnect opens the transport at the user's request.
func (s *Supervisor) UserConnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.userHeld = false
	gen, u := s.beginConnectLocked()
	s.mu.Unlock()

	s.logger.Info("user connect")
	s.emitState(u)
	return s.dial(ctx, gen)
}

// UserDisconnect closes the transport at the user's request. Automatic
// reconnection is held until the next UserConnect.
func (s *Supervisor) UserDisconnect(ctx context.Context) error {
	s.mu.Lock()
	s.userHeld = true
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("user disconnect")
	err := s.transport.Disconnect(ctx)

	s.mu.Lock()
	u, changed := s.enterDisconnectedLocked(nil)
	s.mu.Unlock()
	if changed {
		s.emitState(u)
	}

	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// beginConnectLocked moves a Disconnected supervisor to Connecting and
// returns the generation the new stream is bound to.
func (s *Supervisor) beginConnectLocked() (uint64, StateUpdate) {
	s.generation++
	s.framer.Reset()
	return s.generation, s.transitionLocked(StateConnecting, nil)
}

// dial runs one transport Connect for gen. The lock is not held during I/O;
// dials are serialized by dialMu.
func (s *Supervisor) dial(ctx context.Context, gen uint64) error {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	cctx := ctx
	if s.policy.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.policy.ConnectTimeout)
		defer cancel()
	}

	err := s.transport.Connect(cctx, &stream{s: s, gen: gen})

	s.mu.Lock()
	if gen != s.generation {
		// Closed or superseded while the dial was in flight. A stream that
		// opened anyway belongs to nobody and is released here.
		s.mu.Unlock()
		if err != nil {
			return &TransportError{Op: "connect", Err: err}
		}
		s.logger.Info("releasing stream opened after disconnect")
		if derr := s.transport.Disconnect(ctx); derr != nil {
			s.logger.Debug("release failed", zap.Error(derr))
		}
		return &TransportError{Op: "connect", Err: ErrConnectAborted}
	}
	if s.state != StateConnecting {
		// Already opened through TransportOpened.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		u, _ := s.enterDisconnectedLocked(err)
		s.mu.Unlock()
		s.logger.Warn("connect failed", zap.Int("attempt", u.Attempt), zap.Error(err))
		s.emitState(u)
		return &TransportError{Op: "connect", Err: err}
	}
	u := s.openedLocked()
	s.mu.Unlock()
	s.emitState(u)
	return nil
}

// TransportOpened records that the stream is open. Transports that report
// readiness asynchronously may call it; it is a no-op unless Connecting.
func (s *Supervisor) TransportOpened() {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	u := s.openedLocked()
	s.mu.Unlock()
	s.emitState(u)
}

func (s *Supervisor) openedLocked() StateUpdate {
	s.heartbeat = 0
	s.logger.Info("transport opened")
	return s.transitionLocked(StateConnected, nil)
}

// TransportClosed records the end of the current stream.
func (s *Supervisor) TransportClosed(err error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.closed(gen, err)
}

func (s *Supervisor) closed(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	u, changed := s.enterDisconnectedLocked(err)
	s.mu.Unlock()
	if changed {
		s.logger.Info("transport closed", zap.Error(err))
		s.emitState(u)
	}
}

// RegistrationConfirmed records a completed IRC handshake. It resets the
// reconnect attempt index and starts a new registration epoch.
func (s *Supervisor) RegistrationConfirmed() {
	s.mu.Lock()
	u, ok := s.registeredLocked()
	s.mu.Unlock()
	if ok {
		s.emitState(u)
	}
}

func (s *Supervisor) registeredLocked() (StateUpdate, bool) {
	if s.state != StateConnected {
		return StateUpdate{}, false
	}
	s.attempt = 0
	epoch := s.session.bumpEpoch()
	s.logger.Info("registered", zap.String("nick", s.session.OwnNick()), zap.Uint64("epoch", epoch))
	return s.transitionLocked(StateRegistered, nil), true
}

// HeartbeatReceived resets the watchdog.
func (s *Supervisor) HeartbeatReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeat = 0
}

// Tick advances all time based bookkeeping by one second. A failed reconnect
// attempt is returned as a *TransportError.
func (s *Supervisor) Tick(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
		return s.reconnectTickLocked(ctx)
	case StateConnected, StateRegistered:
		return s.heartbeatTickLocked(ctx)
	default:
		s.mu.Unlock()
		return nil
	}
}

// reconnectTickLocked is entered with s.mu held and releases it.
func (s *Supervisor) reconnectTickLocked(ctx context.Context) error {
	if !s.autoReconnect || s.userHeld {
		s.mu.Unlock()
		return nil
	}

	next := s.attempt + 1
	if next > s.policy.MaxAttempts {
		s.autoReconnect = false
		u := StateUpdate{From: s.state, To: s.state, Attempt: s.attempt, Err: ErrReconnectExhausted}
		s.mu.Unlock()
		s.logger.Warn("auto-reconnect disabled", zap.Int("attempt", u.Attempt))
		s.metrics.ReconnectExhausted()
		s.emitState(u)
		return nil
	}

	s.hold++
	if s.hold < s.policy.holdBefore(next) {
		s.mu.Unlock()
		return nil
	}
	s.attempt = next
	gen, u := s.beginConnectLocked()
	s.mu.Unlock()

	s.logger.Info("reconnect attempt", zap.Int("attempt", next))
	s.metrics.ReconnectAttempt()
	s.emitState(u)
	return s.dial(ctx, gen)
}

// heartbeatTickLocked is entered with s.mu held and releases it.
func (s *Supervisor) heartbeatTickLocked(ctx context.Context) error {
	s.heartbeat++
	count := s.heartbeat
	interval := s.policy.HeartbeatInterval

	switch {
	case count == interval:
		s.mu.Unlock()
		s.logger.Warn("heartbeat overdue, closing transport", zap.Int("heartbeat", count))
		s.metrics.HeartbeatTimeout("soft")
		if err := s.transport.Disconnect(ctx); err != nil {
			return &TransportError{Op: "disconnect", Err: err}
		}
		return nil

	case count > interval:
		u, changed := s.enterDisconnectedLocked(ErrHeartbeatTimeout)
		s.mu.Unlock()
		if !changed {
			return nil
		}
		s.logger.Warn("heartbeat lost, forcing disconnect", zap.Int("heartbeat", count))
		s.metrics.HeartbeatTimeout("hard")
		s.emitState(u)
		// The stream is already stale; this only releases the socket.
		if err := s.transport.Disconnect(ctx); err != nil {
			s.logger.Debug("release stale transport", zap.Error(err))
		}
		return nil
	}

	s.mu.Unlock()
	return nil
}

// enterDisconnectedLocked moves to Disconnected and invalidates the current
// stream. changed is false if already Disconnected.
func (s *Supervisor) enterDisconnectedLocked(cause error) (StateUpdate, bool) {
	if s.state == StateDisconnected {
		return StateUpdate{}, false
	}
	s.generation++
	s.hold = 0
	s.heartbeat = 0
	s.framer.Reset()
	s.session.clearChannels()
	return s.transitionLocked(StateDisconnected, cause), true
}

func (s *Supervisor) transitionLocked(to ConnectionState, cause error) StateUpdate {
	u := StateUpdate{From: s.state, To: to, Attempt: s.attempt, Err: cause}
	s.state = to
	s.metrics.SetState(to.String(), stateNames)
	return u
}

func (s *Supervisor) emitState(u StateUpdate) {
	if s.sink != nil {
		s.sink.OnStateChange(u)
	}
}

// HandleChunk feeds inbound text from the current stream.
func (s *Supervisor) HandleChunk(chunk string) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.handleChunk(gen, chunk)
}

// inbound is one item queued for the sink, in stream order.
type inbound struct {
	msg     protocol.Message
	ctcp    *protocol.CTCPMessage
	control *protocol.Control
	update  *StateUpdate
}

func (s *Supervisor) handleChunk(gen uint64, chunk string) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}

	var out []inbound
	for _, line := range s.framer.Write(chunk) {
		if c, ok := protocol.ParseControl(line); ok {
			if c.Kind == protocol.ControlHeartbeat {
				s.heartbeat = 0
			}
			s.metrics.ControlLine(c.Kind.String())
			out = append(out, inbound{control: &c})
			continue
		}

		msg := protocol.ParseAt(line, s.location)
		s.metrics.LineParsed(msg.Command == "")
		if msg.Command == "" {
			s.logger.Debug("malformed line", zap.String("line", line))
		}

		registered := s.session.observe(msg)
		if msg.IsCTCP() {
			ctcp, _ := protocol.DecodeCTCP(msg, s.session.OwnNick())
			out = append(out, inbound{msg: msg, ctcp: &ctcp})
		} else {
			out = append(out, inbound{msg: msg})
		}

		if registered {
			if u, ok := s.registeredLocked(); ok {
				out = append(out, inbound{update: &u})
			}
		}
	}
	s.mu.Unlock()

	if s.sink == nil {
		return
	}
	for _, in := range out {
		switch {
		case in.update != nil:
			s.sink.OnStateChange(*in.update)
		case in.control != nil:
			s.sink.OnControl(*in.control)
		case in.ctcp != nil:
			s.sink.OnCTCP(*in.ctcp, in.msg)
		default:
			s.sink.OnMessage(in.msg)
		}
	}
}

// Run drives Tick at 1 Hz until ctx is done. Tick failures are logged; they
// have already moved the supervisor to Disconnected.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Debug("tick", zap.Error(err))
			}
		}
	}
}

// stream binds transport callbacks to the Connect call that created them.
type stream struct {
	s   *Supervisor
	gen uint64
}

func (st *stream) HandleChunk(chunk string) {
	st.s.handleChunk(st.gen, chunk)
}

func (st *stream) TransportClosed(err error) {
	st.s.closed(st.gen, err)
}
