package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aeolun/irctunnel/pkg/client"
	"github.com/aeolun/irctunnel/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type terminalHarness struct {
	term *terminal
	mock *client.MockTransport
	sink *client.ChanSink
	out  *bytes.Buffer
}

func newTerminalHarness(t *testing.T, cfg config.Config) *terminalHarness {
	t.Helper()
	ctx := context.Background()

	policy := cfg.Policy()
	policy.PacedSendDelay = time.Millisecond

	mock := client.NewMockTransport()
	sink := client.NewChanSink(ctx, 64)
	sup := client.NewSupervisor(mock, sink, client.NewSession(cfg.Session.Nickname), policy)

	st, err := client.OpenState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	out := &bytes.Buffer{}
	term := &terminal{
		out:       out,
		sup:       sup,
		state:     st,
		cfg:       cfg,
		gateway:   "ws://gw.example:8080/irc",
		nick:      cfg.Session.Nickname,
		requested: cfg.Session.Nickname,
	}
	return &terminalHarness{term: term, mock: mock, sink: sink, out: out}
}

// pump hands every buffered event to the terminal.
func (h *terminalHarness) pump() {
	for {
		select {
		case e := <-h.sink.Events():
			h.term.handle(context.Background(), e)
		default:
			return
		}
	}
}

func (h *terminalHarness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.term.sup.UserConnect(context.Background()))
	h.pump()
}

func (h *terminalHarness) lastSent() string {
	sent := h.mock.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Session.Nickname = "alice"
	cfg.Session.Username = "al"
	cfg.Session.Realname = "Alice"
	return cfg
}

func TestTerminalRegistration(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Channels = []string{"#go", "#irc"}
	h := newTerminalHarness(t, cfg)
	h.term.paste = []string{"one", "two"}

	h.connect(t)
	assert.Equal(t, []string{"NICK alice", "USER al 0 * :Alice"}, h.mock.Sent())

	h.mock.SimulateChunk(":irc.example 433 * alice :Nickname is already in use\r\n")
	h.pump()
	assert.Equal(t, "NICK alice_", h.lastSent())

	h.mock.SimulateChunk(":irc.example 001 alice_ :Welcome\r\n")
	h.pump()
	require.Equal(t, client.StateRegistered, h.term.sup.State())

	require.Eventually(t, func() bool { return len(h.mock.Sent()) == 7 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"NICK alice",
		"USER al 0 * :Alice",
		"NICK alice_",
		"JOIN #go",
		"JOIN #irc",
		"PRIVMSG #go :one",
		"PRIVMSG #go :two",
	}, h.mock.Sent())

	assert.Equal(t, "alice", h.term.state.GetLastNickname(), "fallback nick is not remembered")
	last, ok, err := h.term.state.GetLastSuccessfulConnection()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ws://gw.example:8080/irc", last.GatewayURL)
	assert.Equal(t, "alice", last.Nickname)

	// A reconnect asks for the configured nick again.
	h.mock.SimulateClose(nil)
	h.pump()
	require.NoError(t, h.term.sup.Tick(context.Background()))
	h.pump()
	sent := h.mock.Sent()
	assert.Equal(t, []string{"NICK alice", "USER al 0 * :Alice"}, sent[len(sent)-2:])
}

func TestTerminalReplies(t *testing.T) {
	tests := []struct {
		name    string
		chunk   string
		want    string
		wantOut string
	}{
		{
			name:  "server ping",
			chunk: "PING :irc.example\r\n",
			want:  "PONG :irc.example",
		},
		{
			name:    "ctcp version",
			chunk:   ":bob!b@host.example PRIVMSG alice :\x01VERSION\x01\r\n",
			want:    "NOTICE bob :\x01VERSION irctunnel\x01",
			wantOut: "*** CTCP VERSION from bob",
		},
		{
			name:  "ctcp ping",
			chunk: ":bob!b@host.example PRIVMSG alice :\x01PING 12345\x01\r\n",
			want:  "NOTICE bob :\x01PING 12345\x01",
		},
		{
			name:    "action",
			chunk:   ":bob!b@host.example PRIVMSG #go :\x01ACTION waves\x01\r\n",
			wantOut: "[#go] * bob waves",
		},
		{
			name:    "channel message",
			chunk:   ":bob!b@host.example PRIVMSG #go :hello there\r\n",
			wantOut: "[#go] <bob> hello there",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTerminalHarness(t, testConfig())
			h.connect(t)
			before := len(h.mock.Sent())

			h.mock.SimulateChunk(tt.chunk)
			h.pump()

			if tt.want != "" {
				assert.Equal(t, tt.want, h.lastSent())
			} else {
				assert.Len(t, h.mock.Sent(), before, "nothing sent")
			}
			if tt.wantOut != "" {
				assert.Contains(t, h.out.String(), tt.wantOut)
			}
		})
	}
}

func TestTerminalWindows(t *testing.T) {
	h := newTerminalHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	assert.False(t, h.term.input(ctx, "hello"))
	assert.Contains(t, h.out.String(), "No window selected")

	h.term.input(ctx, "/window #go")
	h.term.input(ctx, "hello all")
	assert.Equal(t, "PRIVMSG #go :hello all", h.lastSent())

	h.term.input(ctx, "/window bob")
	h.term.input(ctx, "hi bob")
	assert.Equal(t, "PRIVMSG bob :hi bob", h.lastSent())

	h.term.input(ctx, "/me waves")
	assert.Equal(t, "PRIVMSG bob :\x01ACTION waves\x01", h.lastSent())

	h.term.input(ctx, "/window")
	assert.Contains(t, h.out.String(), "*** Window: server")

	h.term.input(ctx, "/op bob")
	assert.Contains(t, h.out.String(), "/OP without a channel is only valid in a channel window")

	assert.True(t, h.term.input(ctx, "/quit bye"))
	assert.Equal(t, "QUIT :bye", h.lastSent())
}

func TestTerminalConnectionCommands(t *testing.T) {
	h := newTerminalHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	h.term.input(ctx, "/connect")
	assert.Contains(t, h.out.String(), client.ErrAlreadyConnected.Error())

	h.term.input(ctx, "/disconnect")
	assert.Equal(t, client.StateDisconnected, h.term.sup.State())
	require.NoError(t, h.term.sup.Tick(ctx))
	assert.Equal(t, 1, h.mock.Connects(), "no reconnect after a user disconnect")

	h.term.input(ctx, "/connect")
	assert.Equal(t, client.StateConnected, h.term.sup.State())
	assert.Equal(t, 2, h.mock.Connects())
}

func TestTerminalAutoReconnect(t *testing.T) {
	h := newTerminalHarness(t, testConfig())
	ctx := context.Background()

	h.term.input(ctx, "/autoreconnect maybe")
	assert.Contains(t, h.out.String(), "Expect: /autoreconnect on|off")
	assert.True(t, h.term.sup.Snapshot().AutoReconnect)

	h.term.input(ctx, "/autoreconnect off")
	assert.False(t, h.term.sup.Snapshot().AutoReconnect)
	assert.False(t, h.term.state.GetAutoReconnect(true))

	h.term.input(ctx, "/autoreconnect on")
	assert.True(t, h.term.sup.Snapshot().AutoReconnect)
	assert.True(t, h.term.state.GetAutoReconnect(false))
}
