package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// OriginKind says which window the user typed into.
type OriginKind int

const (
	OriginServer OriginKind = iota
	OriginChannel
	OriginPrivate
)

// Origin resolves targets the user left out, e.g. /PART in a channel window.
type Origin struct {
	Kind OriginKind
	Name string // channel name or private nick; empty for OriginServer
}

// Context is the read-only session view the synthesizer consults.
type Context interface {
	OwnNick() string
	IsChannel(name string) bool
}

// Input is one line typed by the user.
type Input struct {
	Text   string
	Origin Origin
}

// UsageError is a user-input validation failure. Message is meant for display.
type UsageError struct {
	Command string
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usagef(command, format string, args ...interface{}) *UsageError {
	return &UsageError{Command: command, Message: fmt.Sprintf(format, args...)}
}

// Result of synthesizing one input line. Exactly one of Line, NoOp or Err
// is meaningful.
type Result struct {
	Line string
	NoOp bool
	Err  error
}

// OK reports whether the result carries a line to send or a no-op.
func (r Result) OK() bool {
	return r.Err == nil
}

// UsageMessage returns the display text of a usage error, or "".
func (r Result) UsageMessage() string {
	var ue *UsageError
	if errors.As(r.Err, &ue) {
		return ue.Message
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

type buildFunc func(p ParsedCommand, in Input, ctx Context) (string, error)

// Command is an entry in the keyword table. Arity is checked against
// ParsedCommand.TokenCount before Build runs; MaxTokens < 0 means unbounded.
type Command struct {
	Keyword   string
	MinTokens int
	MaxTokens int
	Usage     string
	build     buildFunc
}

var table = map[string]*Command{}

func register(c *Command) {
	table[c.Keyword] = c
}

func init() {
	register(&Command{Keyword: "ADMIN", MinTokens: 0, MaxTokens: 1, Usage: "/ADMIN [server]", build: optionalArg("ADMIN")})
	register(&Command{Keyword: "AWAY", MinTokens: 0, MaxTokens: -1, Usage: "/AWAY [away-message]", build: buildAway})
	register(&Command{Keyword: "CTCP", MinTokens: 2, MaxTokens: 2, Usage: "/CTCP <nickname> <ctcp-command>", build: buildCTCP})
	register(&Command{Keyword: "DEOP", MinTokens: 1, MaxTokens: -1, Usage: "/DEOP [#channel] <nick1> [nick2] ... (max 5)", build: channelMode('-', 'o')})
	register(&Command{Keyword: "DEVOICE", MinTokens: 1, MaxTokens: -1, Usage: "/DEVOICE [#channel] <nick1> [nick2] ... (max 5)", build: channelMode('-', 'v')})
	register(&Command{Keyword: "OP", MinTokens: 1, MaxTokens: -1, Usage: "/OP [#channel] <nick1> [nick2] ... (max 5)", build: channelMode('+', 'o')})
	register(&Command{Keyword: "VOICE", MinTokens: 1, MaxTokens: -1, Usage: "/VOICE [#channel] <nick1> [nick2] ... (max 5)", build: channelMode('+', 'v')})
	register(&Command{Keyword: "JOIN", MinTokens: 1, MaxTokens: 2, Usage: "/JOIN <#channel> [key]", build: buildJoin})
	register(&Command{Keyword: "LIST", MinTokens: 0, MaxTokens: -1, Usage: "/LIST [arguments]", build: optionalRest("LIST")})
	register(&Command{Keyword: "ME", MinTokens: 1, MaxTokens: -1, Usage: "/ME <action-message>", build: buildMe})
	register(&Command{Keyword: "MODE", MinTokens: 0, MaxTokens: -1, Usage: "/MODE [#channel|nickname] [modes] [arguments]", build: buildMode})
	register(&Command{Keyword: "MOTD", MinTokens: 0, MaxTokens: 1, Usage: "/MOTD [server]", build: optionalArg("MOTD")})
	register(&Command{Keyword: "MSG", MinTokens: 2, MaxTokens: -1, Usage: "/MSG <nickname> <message-text>", build: buildText("PRIVMSG")})
	register(&Command{Keyword: "QUERY", MinTokens: 2, MaxTokens: -1, Usage: "/QUERY <nickname> <message-text>", build: buildText("PRIVMSG")})
	register(&Command{Keyword: "NICK", MinTokens: 1, MaxTokens: 1, Usage: "/NICK <new-nickname>", build: buildNick})
	register(&Command{Keyword: "NOTICE", MinTokens: 2, MaxTokens: -1, Usage: "/NOTICE <nickname> <message-text>", build: buildText("NOTICE")})
	register(&Command{Keyword: "PART", MinTokens: 0, MaxTokens: -1, Usage: "/PART [#channel] [part-message]", build: buildPart})
	register(&Command{Keyword: "QUIT", MinTokens: 0, MaxTokens: -1, Usage: "/QUIT [quit-message]", build: buildQuit})
	register(&Command{Keyword: "QUOTE", MinTokens: 1, MaxTokens: -1, Usage: "/QUOTE <RAWCOMMAND> [arguments]", build: buildQuote})
	register(&Command{Keyword: "TOPIC", MinTokens: 1, MaxTokens: -1, Usage: "/TOPIC [#channel] <new-topic>", build: buildTopic})
	register(&Command{Keyword: "VERSION", MinTokens: 0, MaxTokens: 1, Usage: "/VERSION [server]", build: optionalArg("VERSION")})
	register(&Command{Keyword: "WHO", MinTokens: 0, MaxTokens: -1, Usage: "/WHO [mask]", build: optionalRest("WHO")})
	register(&Command{Keyword: "WHOIS", MinTokens: 1, MaxTokens: 1, Usage: "/WHOIS <nickname>", build: buildWhois})
	register(&Command{Keyword: "_DEBUG", MinTokens: 0, MaxTokens: -1, Usage: "/_DEBUG", build: nil})
}

// Lookup returns the table entry for a keyword (case-insensitive).
func Lookup(keyword string) (*Command, bool) {
	c, ok := table[strings.ToUpper(keyword)]
	return c, ok
}

// Keywords lists every registered keyword in sorted order.
func Keywords() []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Synthesize validates a slash-command and builds the raw line to send.
// It never panics; every failure is reported in Result.Err.
func Synthesize(ctx Context, in Input) Result {
	p, err := Tokenize(in.Text)
	if err != nil {
		return Result{Err: err}
	}

	c, ok := table[p.Command]
	if !ok {
		return Result{Err: usagef(p.Command, "Unknown command \"/%s\"", p.Command)}
	}

	n := p.TokenCount()
	if n < c.MinTokens || (c.MaxTokens >= 0 && n > c.MaxTokens) {
		return Result{Err: usagef(c.Keyword, "Expect: %s", c.Usage)}
	}

	if c.build == nil {
		return Result{NoOp: true}
	}

	line, err := c.build(p, in, ctx)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Line: line}
}

func optionalArg(keyword string) buildFunc {
	return func(p ParsedCommand, _ Input, _ Context) (string, error) {
		if len(p.Params) == 0 {
			return keyword, nil
		}
		return keyword + " " + p.Params[0], nil
	}
}

func optionalRest(keyword string) buildFunc {
	return func(p ParsedCommand, _ Input, _ Context) (string, error) {
		if len(p.Params) == 0 {
			return keyword, nil
		}
		return keyword + " " + p.Rest[0], nil
	}
}

func buildAway(p ParsedCommand, _ Input, _ Context) (string, error) {
	if len(p.Params) == 0 {
		return "AWAY", nil
	}
	return "AWAY :" + p.Rest[0], nil
}

func buildCTCP(p ParsedCommand, _ Input, _ Context) (string, error) {
	return fmt.Sprintf("PRIVMSG %s :\x01%s\x01", p.Params[0], strings.ToUpper(p.Params[1])), nil
}

func buildJoin(p ParsedCommand, _ Input, ctx Context) (string, error) {
	if !ctx.IsChannel(p.Params[0]) {
		return "", usagef("JOIN", "Expect: /JOIN <#channel> [key]")
	}
	if len(p.Params) == 2 {
		return "JOIN " + p.Params[0] + " " + p.Params[1], nil
	}
	return "JOIN " + p.Params[0], nil
}

func buildMe(p ParsedCommand, in Input, _ Context) (string, error) {
	switch in.Origin.Kind {
	case OriginChannel, OriginPrivate:
		if in.Origin.Name == "" {
			break
		}
		return fmt.Sprintf("PRIVMSG %s :\x01ACTION %s\x01", in.Origin.Name, p.Rest[0]), nil
	}
	return "", usagef("ME", "/ME is only valid in a channel or private message window")
}

func buildText(verb string) buildFunc {
	return func(p ParsedCommand, _ Input, _ Context) (string, error) {
		return verb + " " + p.Params[0] + " :" + p.Rest[1], nil
	}
}

func buildNick(p ParsedCommand, _ Input, ctx Context) (string, error) {
	if ctx.IsChannel(p.Params[0]) {
		return "", usagef("NICK", "Expect: /NICK <new-nickname>")
	}
	return "NICK " + p.Params[0], nil
}

func buildPart(p ParsedCommand, in Input, ctx Context) (string, error) {
	inChannel := in.Origin.Kind == OriginChannel && in.Origin.Name != ""
	switch {
	case len(p.Params) > 0 && ctx.IsChannel(p.Params[0]):
		if len(p.Params) > 1 {
			return "PART " + p.Params[0] + " :" + p.Rest[1], nil
		}
		return "PART " + p.Params[0], nil
	case inChannel && len(p.Params) > 0:
		return "PART " + in.Origin.Name + " :" + p.Rest[0], nil
	case inChannel:
		return "PART " + in.Origin.Name, nil
	}
	return "", usagef("PART", "Expect: /PART [#channel] [part-message]")
}

func buildQuit(p ParsedCommand, _ Input, _ Context) (string, error) {
	if len(p.Params) == 0 {
		return "QUIT", nil
	}
	return "QUIT :" + p.Rest[0], nil
}

func buildQuote(p ParsedCommand, _ Input, _ Context) (string, error) {
	return p.Rest[0], nil
}

func buildTopic(p ParsedCommand, in Input, ctx Context) (string, error) {
	if ctx.IsChannel(p.Params[0]) {
		if len(p.Params) == 1 {
			return "TOPIC " + p.Params[0], nil
		}
		return "TOPIC " + p.Params[0] + " :" + p.Rest[1], nil
	}
	if in.Origin.Kind == OriginChannel && in.Origin.Name != "" {
		return "TOPIC " + in.Origin.Name + " :" + p.Rest[0], nil
	}
	return "", usagef("TOPIC", "Expect: /TOPIC [#channel] <new-topic>")
}

func buildWhois(p ParsedCommand, _ Input, _ Context) (string, error) {
	return "WHOIS " + p.Params[0], nil
}
