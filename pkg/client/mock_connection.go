package client

import (
	"context"
	"fmt"
	"sync"
)

// MockTransport is a test implementation of Transport. It records calls and
// lets tests push inbound data and closures through the handler bound by the
// last Connect.
type MockTransport struct {
	mu sync.Mutex

	handler    StreamHandler
	connectErr []error // consumed one per Connect; nil entries succeed
	sendErr    error
	gate       chan struct{} // Connect waits on it when set

	// CloseOnDisconnect confirms closure synchronously from Disconnect.
	CloseOnDisconnect bool

	ConnectCalls    int
	DisconnectCalls int
	SentLines       []string
}

// NewMockTransport creates a mock transport whose calls all succeed.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Connect records the call and binds h unless a scripted error is pending.
func (m *MockTransport) Connect(ctx context.Context, h StreamHandler) error {
	m.mu.Lock()
	m.ConnectCalls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.connectErr) > 0 {
		err := m.connectErr[0]
		m.connectErr = m.connectErr[1:]
		if err != nil {
			return err
		}
	}
	m.handler = h
	return nil
}

// Disconnect records the call.
func (m *MockTransport) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.DisconnectCalls++
	h := m.handler
	closeNow := m.CloseOnDisconnect
	if closeNow {
		m.handler = nil
	}
	m.mu.Unlock()

	if closeNow && h != nil {
		h.TransportClosed(nil)
	}
	return nil
}

// Send records line unless a send error is set.
func (m *MockTransport) Send(ctx context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	m.SentLines = append(m.SentLines, line)
	return nil
}

// Test helpers

// QueueConnectErrors scripts the results of the next Connect calls.
func (m *MockTransport) QueueConnectErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = append(m.connectErr, errs...)
}

// HoldConnects makes Connect block until release is called.
func (m *MockTransport) HoldConnects() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Disconnects returns the number of Disconnect calls.
func (m *MockTransport) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DisconnectCalls
}

// FailConnects makes the next n Connect calls fail.
func (m *MockTransport) FailConnects(n int) {
	for i := 0; i < n; i++ {
		m.QueueConnectErrors(fmt.Errorf("connection refused (%d)", i+1))
	}
}

// SetSendError sets an error to return from Send()
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Handler returns the handler bound by the last successful Connect.
func (m *MockTransport) Handler() StreamHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// SimulateChunk delivers chunk on the current stream.
func (m *MockTransport) SimulateChunk(chunk string) {
	if h := m.Handler(); h != nil {
		h.HandleChunk(chunk)
	}
}

// SimulateClose ends the current stream with err.
func (m *MockTransport) SimulateClose(err error) {
	m.mu.Lock()
	h := m.handler
	m.handler = nil
	m.mu.Unlock()
	if h != nil {
		h.TransportClosed(err)
	}
}

// Sent returns a copy of the lines sent so far.
func (m *MockTransport) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.SentLines...)
}

// Connects returns the number of Connect calls.
func (m *MockTransport) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConnectCalls
}
