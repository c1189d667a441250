// Package commands turns slash-commands typed by the user into raw IRC lines.
//
// Synthesize is stateless and safe for concurrent use. Session details it
// needs (own nick, which names are channels) come from a Context supplied
// by the caller.
package commands

import (
	"errors"
	"strings"
)

// MaxParams is the number of positional tokens retained by Tokenize.
const MaxParams = 5

// ErrNotCommand is returned by Tokenize for text that does not start with
// a slash. Such text is a plain message and belongs to the caller.
var ErrNotCommand = errors.New("input is not a slash command")

// ParsedCommand is tokenized slash-command input.
//
// Rest[i] is the verbatim remainder of the line starting at Params[i], so a
// handler can take free text (message bodies, topics) without losing spacing.
type ParsedCommand struct {
	Command string
	Params  []string
	Rest    []string
}

// Param returns the i'th token or "".
func (p ParsedCommand) Param(i int) string {
	if i < 0 || i >= len(p.Params) {
		return ""
	}
	return p.Params[i]
}

// RestOf returns the remainder starting at token i or "".
func (p ParsedCommand) RestOf(i int) string {
	if i < 0 || i >= len(p.Rest) {
		return ""
	}
	return p.Rest[i]
}

// Fields returns every whitespace separated token after the keyword,
// including any beyond MaxParams.
func (p ParsedCommand) Fields() []string {
	return strings.Fields(p.RestOf(0))
}

// TokenCount is len(Fields()).
func (p ParsedCommand) TokenCount() int {
	return len(p.Fields())
}

// Tokenize splits raw user text into a keyword and positional tokens.
func Tokenize(text string) (ParsedCommand, error) {
	switch {
	case strings.HasSuffix(text, "\r\n"):
		text = text[:len(text)-2]
	case strings.HasSuffix(text, "\n"), strings.HasSuffix(text, "\r"):
		text = text[:len(text)-1]
	}

	if strings.ContainsAny(text, "\r\n") {
		return ParsedCommand{}, usagef("", "Multi-line input is not supported")
	}
	if !strings.HasPrefix(text, "/") {
		return ParsedCommand{}, ErrNotCommand
	}
	if len(text) < 2 || isSpace(text[1]) {
		return ParsedCommand{}, usagef("", "Invalid command format, expected /COMMAND [arguments]")
	}

	keyword, rest := splitWord(text[1:])
	p := ParsedCommand{Command: strings.ToUpper(keyword)}

	for len(p.Params) < MaxParams {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		var token string
		p.Rest = append(p.Rest, rest)
		token, rest = splitWord(rest)
		p.Params = append(p.Params, token)
	}

	return p, nil
}

func splitWord(s string) (string, string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
