package client

import (
	"sort"
	"strings"
	"sync"

	"github.com/aeolun/irctunnel/pkg/protocol"
	"github.com/google/uuid"
)

// DefaultChannelPrefixes applies until the server advertises CHANTYPES.
const DefaultChannelPrefixes = "#&"

// Session is the per-connection context shared by the Supervisor, the
// command synthesizer and the CTCP decoder. Other packages only read it;
// the Supervisor updates it from inbound messages.
type Session struct {
	id string

	mu       sync.RWMutex
	nick     string
	prefixes string
	channels map[string]string // folded name -> name as joined
	epoch    uint64
}

// NewSession creates a session. nick is the nick requested at connect
// time; the server's 001 reply overrides it.
func NewSession(nick string) *Session {
	return &Session{
		id:       uuid.NewString(),
		nick:     nick,
		prefixes: DefaultChannelPrefixes,
		channels: make(map[string]string),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// OwnNick returns the client's current nick.
func (s *Session) OwnNick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

// IsChannel reports whether name starts with a channel prefix.
func (s *Session) IsChannel(name string) bool {
	if name == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.IndexByte(s.prefixes, name[0]) >= 0
}

// ChannelPrefixes returns the active CHANTYPES set.
func (s *Session) ChannelPrefixes() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixes
}

// Joined reports whether the client is in channel name.
func (s *Session) Joined(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[strings.ToLower(name)]
	return ok
}

// Channels lists joined channels, sorted.
func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for _, name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Epoch counts confirmed registrations. It changes every time the
// connection is re-established.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *Session) isSelf(nick string) bool {
	return nick != "" && strings.EqualFold(nick, s.nick)
}

// observe updates the session from one inbound message and reports whether
// it confirmed registration.
func (s *Session) observe(msg protocol.Message) (registered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Command {
	case "001":
		if nick := msg.Param(0); nick != "" {
			s.nick = nick
		}
		return true
	case "005":
		for _, p := range msg.Params {
			if v, ok := strings.CutPrefix(p, "CHANTYPES="); ok && v != "" {
				s.prefixes = v
			}
		}
	case "NICK":
		if s.isSelf(msg.Nick) && msg.Param(0) != "" {
			s.nick = msg.Param(0)
		}
	case "JOIN":
		if s.isSelf(msg.Nick) && msg.Param(0) != "" {
			s.channels[strings.ToLower(msg.Param(0))] = msg.Param(0)
		}
	case "PART":
		if s.isSelf(msg.Nick) {
			delete(s.channels, strings.ToLower(msg.Param(0)))
		}
	case "KICK":
		if s.isSelf(msg.Param(1)) {
			delete(s.channels, strings.ToLower(msg.Param(0)))
		}
	}
	return false
}

func (s *Session) bumpEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	return s.epoch
}

func (s *Session) clearChannels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]string)
}
