package protocol

import "strings"

// CTCPDelim wraps CTCP sub-messages inside PRIVMSG and NOTICE bodies.
const CTCPDelim = "\x01"

// CTCPDirection classifies a CTCP message relative to the local client.
type CTCPDirection int

const (
	CTCPRequestSent CTCPDirection = iota
	CTCPReplySent
	CTCPRequestReceived
	CTCPReplyReceived
)

func (d CTCPDirection) String() string {
	switch d {
	case CTCPRequestSent:
		return "request-sent"
	case CTCPReplySent:
		return "reply-sent"
	case CTCPRequestReceived:
		return "request-received"
	case CTCPReplyReceived:
		return "reply-received"
	default:
		return "unknown"
	}
}

// CTCPMessage is a decoded CTCP sub-message.
type CTCPMessage struct {
	Command   string        `json:"command"` // upper-cased keyword, e.g. ACTION, VERSION
	Args      string        `json:"args,omitempty"`
	Direction CTCPDirection `json:"-"`
}

// IsAction reports whether the message is an emote. Actions are rendered the
// same regardless of direction.
func (c CTCPMessage) IsAction() bool {
	return c.Command == "ACTION"
}

// IsCTCP reports whether m is a PRIVMSG or NOTICE whose body starts with the
// CTCP delimiter.
func (m Message) IsCTCP() bool {
	if m.Command != "PRIVMSG" && m.Command != "NOTICE" {
		return false
	}
	if len(m.Params) < 2 {
		return false
	}
	return strings.HasPrefix(m.Trailing(), CTCPDelim)
}

// DecodeCTCP extracts the CTCP sub-message from m. ownNick identifies the
// local client so echoed outbound messages classify as sent. The second
// result is false when m carries no CTCP payload.
func DecodeCTCP(m Message, ownNick string) (CTCPMessage, bool) {
	if !m.IsCTCP() {
		return CTCPMessage{}, false
	}

	body := strings.TrimPrefix(m.Trailing(), CTCPDelim)
	end := strings.IndexAny(body, " "+CTCPDelim)
	if end < 0 {
		end = len(body)
	}

	ctcp := CTCPMessage{Command: strings.ToUpper(body[:end])}

	rest := body[end:]
	if strings.HasPrefix(rest, " ") {
		rest = rest[1:]
		if i := strings.Index(rest, CTCPDelim); i >= 0 {
			rest = rest[:i]
		}
		ctcp.Args = rest
	}

	sent := ownNick != "" && strings.EqualFold(m.Nick, ownNick)
	switch {
	case sent && m.Command == "PRIVMSG":
		ctcp.Direction = CTCPRequestSent
	case sent:
		ctcp.Direction = CTCPReplySent
	case m.Command == "PRIVMSG":
		ctcp.Direction = CTCPRequestReceived
	default:
		ctcp.Direction = CTCPReplyReceived
	}

	return ctcp, true
}
