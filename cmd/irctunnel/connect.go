package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aeolun/irctunnel/pkg/client"
	"github.com/aeolun/irctunnel/pkg/commands"
	"github.com/aeolun/irctunnel/pkg/config"
	"github.com/aeolun/irctunnel/pkg/metrics"
	"github.com/aeolun/irctunnel/pkg/protocol"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open an interactive session through the gateway",
	Long: `Connects to the configured gateway and reads slash commands or plain
text from stdin. Plain text goes to the current window.

Client commands (handled locally):
  /window <#channel|nick>   switch the current window ("/window" alone for the server)
  /connect, /disconnect     open or close the tunnel
  /autoreconnect on|off     toggle automatic reconnection`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().String("gateway", "", "Gateway URL (overrides gateway.url)")
	connectCmd.Flags().String("nick", "", "Nickname (overrides session.nickname and the last used nickname)")
	connectCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.address)")
	connectCmd.Flags().String("paste", "", "File whose lines are sent to the first channel, paced, after registration")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("gateway"); v != "" {
		cfg.Gateway.URL = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Metrics.Address = v
	}
	statePath, err := config.ExpandPath(cfg.State.Path)
	if err != nil {
		return err
	}
	st, err := client.OpenState(statePath)
	if err != nil {
		return err
	}
	defer st.Close()

	nick := cfg.Session.Nickname
	if last := st.GetLastNickname(); last != "" {
		nick = last
	}
	if cfg.Gateway.URL == "" {
		last, ok, err := st.GetLastSuccessfulConnection()
		if err != nil {
			return err
		}
		if ok {
			logger.Info("using last successful gateway", zap.String("gateway", last.GatewayURL))
			cfg.Gateway.URL = last.GatewayURL
			nick = last.Nickname
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("nick"); v != "" {
		nick = v
	}

	var paste []string
	if path, _ := cmd.Flags().GetString("paste"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read paste file: %w", err)
		}
		for _, line := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
			if line != "" {
				paste = append(paste, line)
			}
		}
	}

	transport, err := client.NewWSTransport(cfg.Gateway.URL, cfg.Gateway.Origin)
	if err != nil {
		return err
	}
	transport.SetLogger(logger.Named("transport"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	policy := cfg.Policy()
	policy.AutoReconnect = st.GetAutoReconnect(policy.AutoReconnect)

	session := client.NewSession(nick)
	sink := client.NewChanSink(ctx, 256)
	m := metrics.New()

	sup := client.NewSupervisor(transport, sink, session, policy)
	sup.SetLogger(logger.Named("supervisor"))
	sup.SetMetrics(m)

	t := &terminal{
		out:       cmd.OutOrStdout(),
		sup:       sup,
		state:     st,
		cfg:       cfg,
		gateway:   transport.URL(),
		paste:     paste,
		nick:      nick,
		requested: nick,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return t.consume(gctx, sink.Events()) })
	if cfg.Metrics.Address != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Address, m) })
	}

	// stdin is read outside the group: a blocked Scan cannot observe ctx.
	go func() {
		t.readInput(gctx, cmd.InOrStdin())
		cancel()
	}()

	if err := sup.UserConnect(gctx); err != nil {
		logger.Warn("initial connect failed, retrying automatically", zap.Error(err))
	}

	err = g.Wait()
	disconnectCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	_ = sup.UserDisconnect(disconnectCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// terminal is the line-oriented presentation layer of connect.
type terminal struct {
	out       io.Writer
	sup       *client.Supervisor
	state     *client.State
	cfg       config.Config
	gateway   string
	paste     []string
	nick      string // nickname the user asked for
	requested string // nickname sent in the current registration

	window commands.Origin
}

func (t *terminal) consume(ctx context.Context, events <-chan client.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-events:
			t.handle(ctx, e)
		}
	}
}

func (t *terminal) handle(ctx context.Context, e client.Event) {
	switch e.Kind {
	case client.EventState:
		t.onState(ctx, e.State)
	case client.EventControl:
		if e.Control.Kind == protocol.ControlLag {
			logger.Debug("gateway lag", zap.Float64("seconds", e.Control.Lag))
		}
	case client.EventCTCP:
		t.onCTCP(ctx, e.CTCP, e.Message)
	case client.EventMessage:
		t.onMessage(ctx, e.Message)
	}
}

func (t *terminal) onState(ctx context.Context, u client.StateUpdate) {
	switch {
	case errors.Is(u.Err, client.ErrReconnectExhausted):
		t.printf("*** Gave up after %d attempts; use /connect to retry", u.Attempt)
		return
	case u.Err != nil:
		t.printf("*** %s (%v)", u.To, u.Err)
	default:
		t.printf("*** %s", u.To)
	}

	switch u.To {
	case client.StateConnected:
		s := t.cfg.Session
		t.requested = t.nick
		t.send(ctx, "NICK "+t.requested)
		t.send(ctx, fmt.Sprintf("USER %s 0 * :%s", s.Username, s.Realname))
	case client.StateRegistered:
		// A 433 fallback is not remembered; the next run asks for t.nick again.
		if err := t.state.SetLastNickname(t.nick); err != nil {
			logger.Warn("failed to store nickname", zap.Error(err))
		}
		if err := t.state.SaveSuccessfulConnection(t.gateway, t.nick); err != nil {
			logger.Warn("failed to store connection", zap.Error(err))
		}
		server := commands.Origin{Kind: commands.OriginServer}
		for _, ch := range t.cfg.Session.Channels {
			res := t.sup.SendCommand(ctx, commands.Input{Text: "/join " + ch, Origin: server})
			if res.Err != nil {
				t.printf("*** %s", res.UsageMessage())
			}
		}
		if len(t.paste) > 0 && len(t.cfg.Session.Channels) > 0 {
			lines := t.paste
			t.paste = nil
			go t.sendPaste(ctx, t.cfg.Session.Channels[0], lines)
		}
	}
}

func (t *terminal) sendPaste(ctx context.Context, channel string, texts []string) {
	lines := make([]string, len(texts))
	for i, text := range texts {
		lines[i] = "PRIVMSG " + channel + " :" + text
	}
	n, err := t.sup.SendPaced(ctx, lines)
	if err != nil {
		t.printf("*** Paste stopped after %d of %d lines: %v", n, len(lines), err)
	}
}

func (t *terminal) onCTCP(ctx context.Context, c protocol.CTCPMessage, msg protocol.Message) {
	target := msg.Param(0)
	switch {
	case c.IsAction():
		t.printf("[%s] * %s %s", target, msg.Nick, c.Args)
	case c.Direction == protocol.CTCPRequestReceived && c.Command == "VERSION":
		t.send(ctx, fmt.Sprintf("NOTICE %s :\x01VERSION irctunnel\x01", msg.Nick))
		t.printf("*** CTCP VERSION from %s", msg.Nick)
	case c.Direction == protocol.CTCPRequestReceived && c.Command == "PING":
		t.send(ctx, fmt.Sprintf("NOTICE %s :\x01PING %s\x01", msg.Nick, c.Args))
	default:
		t.printf("*** CTCP %s %s (%s from %s)", c.Command, c.Args, c.Direction, msg.Nick)
	}
}

func (t *terminal) onMessage(ctx context.Context, msg protocol.Message) {
	switch msg.Command {
	case "":
		return
	case "PING":
		t.send(ctx, "PONG :"+msg.Trailing())
		return
	case "433":
		// Nickname in use during registration.
		if t.sup.State() == client.StateConnected {
			t.requested += "_"
			t.send(ctx, "NICK "+t.requested)
		}
	case "PRIVMSG":
		t.printf("%s[%s] <%s> %s", stamp(msg), msg.Param(0), msg.Nick, msg.Trailing())
		return
	case "NOTICE":
		t.printf("%s-%s- %s", stamp(msg), displayNick(msg), msg.Trailing())
		return
	}

	if msg.IsNumeric() && len(msg.Params) > 1 {
		t.printf("%s%s", stamp(msg), strings.Join(msg.Params[1:], " "))
		return
	}
	t.printf("%s%s %s %s", stamp(msg), displayNick(msg), msg.Command, strings.Join(msg.Params, " "))
}

func stamp(msg protocol.Message) string {
	if msg.Timestamp == "" {
		return ""
	}
	return "[" + msg.Timestamp + "] "
}

func displayNick(msg protocol.Message) string {
	if msg.Nick != "" {
		return msg.Nick
	}
	return msg.Prefix
}

func (t *terminal) readInput(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := t.input(ctx, scanner.Text()); quit {
			return
		}
	}
}

// input handles one typed line and reports whether the user quit.
func (t *terminal) input(ctx context.Context, text string) bool {
	fields := strings.Fields(text)
	if len(fields) > 0 {
		switch strings.ToLower(fields[0]) {
		case "/window":
			t.switchWindow(fields[1:])
			return false
		case "/connect":
			if err := t.sup.UserConnect(ctx); err != nil {
				t.printf("*** %v", err)
			}
			return false
		case "/disconnect":
			if err := t.sup.UserDisconnect(ctx); err != nil {
				t.printf("*** %v", err)
			}
			return false
		case "/autoreconnect":
			t.toggleAutoReconnect(fields[1:])
			return false
		}
	}

	res := t.command(ctx, text)
	if res.OK() && strings.HasPrefix(res.Line, "QUIT") {
		return true
	}
	return false
}

func (t *terminal) command(ctx context.Context, text string) commands.Result {
	res := t.sup.SendCommand(ctx, commands.Input{Text: text, Origin: t.window})
	switch {
	case errors.Is(res.Err, commands.ErrNotCommand):
		t.printf("*** No window selected; use /window <#channel|nick>")
	case res.Err != nil:
		t.printf("*** %s", res.UsageMessage())
	}
	return res
}

func (t *terminal) switchWindow(args []string) {
	if len(args) == 0 {
		t.window = commands.Origin{Kind: commands.OriginServer}
		t.printf("*** Window: server")
		return
	}
	name := args[0]
	if t.sup.Session().IsChannel(name) {
		t.window = commands.Origin{Kind: commands.OriginChannel, Name: name}
	} else {
		t.window = commands.Origin{Kind: commands.OriginPrivate, Name: name}
	}
	t.printf("*** Window: %s", name)
}

func (t *terminal) toggleAutoReconnect(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		t.printf("*** Expect: /autoreconnect on|off")
		return
	}
	enabled := args[0] == "on"
	t.sup.SetAutoReconnect(enabled)
	if err := t.state.SetAutoReconnect(enabled); err != nil {
		logger.Warn("failed to store auto-reconnect preference", zap.Error(err))
	}
	t.printf("*** Auto-reconnect %s", args[0])
}

func (t *terminal) send(ctx context.Context, line string) {
	if err := t.sup.Send(ctx, line); err != nil {
		logger.Debug("send failed", zap.String("line", line), zap.Error(err))
	}
}

func (t *terminal) printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, format+"\n", args...)
}
