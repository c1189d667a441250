// Package protocol decodes the inbound side of the gateway tunnel: it frames
// the text stream into lines, parses IRC lines into messages, and recognizes
// CTCP payloads and gateway control tokens.
package protocol

import (
	"strings"
	"time"
)

// timeTag is the per-line augmentation the gateway adds to replayed cache lines.
const timeTag = "@time="

// Message is one decoded IRC protocol line.
//
// Prefix, Nick and Host are empty when absent. Nick and Host are either both
// set or both empty. Only the last element of Params may contain spaces.
type Message struct {
	Time      time.Time `json:"-"`                   // zero unless the line carried a @time= tag
	Timestamp string    `json:"timestamp,omitempty"` // HH:MM:SS of Time in the parse location
	Datestamp string    `json:"datestamp,omitempty"` // YYYY-MM-DD of Time in the parse location
	Prefix    string    `json:"prefix,omitempty"`
	Nick      string    `json:"nick,omitempty"`
	Host      string    `json:"host,omitempty"` // user@host tail, kept whole
	Command   string    `json:"command"`
	Params    []string  `json:"params,omitempty"`
}

// Param returns the i'th parameter or "" when there is none.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "".
func (m Message) Trailing() string {
	return m.Param(len(m.Params) - 1)
}

// IsNumeric reports whether the command is a three digit reply code.
func (m Message) IsNumeric() bool {
	if len(m.Command) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if m.Command[i] < '0' || m.Command[i] > '9' {
			return false
		}
	}
	return true
}

// Parse decodes a terminator-free line using the local time zone for
// the display stamps.
func Parse(line string) Message {
	return ParseAt(line, time.Local)
}

// ParseAt decodes a terminator-free line. Malformed input never fails: a
// line without a command yields a Message with an empty Command and no Params.
func ParseAt(line string, loc *time.Location) Message {
	var msg Message
	rest := line

	if strings.HasPrefix(rest, timeTag) {
		var tag string
		tag, rest = nextToken(rest)
		msg.setTime(tag[len(timeTag):], loc)
	}

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, ":") {
		var prefix string
		prefix, rest = nextToken(rest)
		msg.Prefix = prefix[1:]
		msg.Nick, msg.Host = splitPrefix(msg.Prefix)
	}

	msg.Command, rest = nextToken(rest)
	if msg.Command == "" {
		return msg
	}

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		if rest[0] == ':' {
			msg.Params = append(msg.Params, rest[1:])
			break
		}
		var param string
		param, rest = nextToken(rest)
		msg.Params = append(msg.Params, param)
	}

	return msg
}

func (m *Message) setTime(value string, loc *time.Location) {
	// Other IRCv3 tags may follow the time tag.
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return
	}
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	m.Time = t
	m.Timestamp = t.Format(time.TimeOnly)
	m.Datestamp = t.Format(time.DateOnly)
}

// nextToken returns the text up to the next space (after skipping leading
// spaces) and the remainder after that space.
func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// splitPrefix decomposes nick!user@host. Both results are empty unless the
// prefix has a non-empty nick and a non-empty tail.
func splitPrefix(prefix string) (nick, host string) {
	i := strings.IndexByte(prefix, '!')
	if i <= 0 || i == len(prefix)-1 {
		return "", ""
	}
	return prefix[:i], prefix[i+1:]
}
