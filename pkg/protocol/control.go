package protocol

import (
	"strconv"
	"strings"
)

// ControlKind identifies a gateway control line. Control lines share the
// stream with IRC lines and must be recognised before Parse.
type ControlKind int

const (
	ControlNone ControlKind = iota
	ControlHeartbeat
	ControlUpdate
	ControlCacheReset
	ControlCachePull
	ControlDebugPong
	ControlLag
)

var controlNames = map[ControlKind]string{
	ControlNone:       "none",
	ControlHeartbeat:  "HEARTBEAT",
	ControlUpdate:     "UPDATE",
	ControlCacheReset: "CACHERESET",
	ControlCachePull:  "CACHEPULL",
	ControlDebugPong:  "DEBUGPONG",
	ControlLag:        "LAG",
}

func (k ControlKind) String() string {
	if name, ok := controlNames[k]; ok {
		return name
	}
	return "unknown"
}

// lagPrefix is followed by a 9 character fixed width float, in seconds.
const (
	lagPrefix = "LAG="
	lagWidth  = 9
)

// Control is a decoded gateway control line.
type Control struct {
	Kind ControlKind
	Lag  float64 // seconds, set for ControlLag
}

// ParseControl recognises a control token. The second result is false for
// ordinary protocol lines.
func ParseControl(line string) (Control, bool) {
	switch line {
	case "HEARTBEAT":
		return Control{Kind: ControlHeartbeat}, true
	case "UPDATE":
		return Control{Kind: ControlUpdate}, true
	case "CACHERESET":
		return Control{Kind: ControlCacheReset}, true
	case "CACHEPULL":
		return Control{Kind: ControlCachePull}, true
	case "DEBUGPONG":
		return Control{Kind: ControlDebugPong}, true
	}

	// The framer may have eaten trailing padding, so a short field is accepted.
	if strings.HasPrefix(line, lagPrefix) && len(line) > len(lagPrefix) && len(line) <= len(lagPrefix)+lagWidth {
		lag, err := strconv.ParseFloat(strings.TrimSpace(line[len(lagPrefix):]), 64)
		if err != nil {
			return Control{}, false
		}
		return Control{Kind: ControlLag, Lag: lag}, true
	}

	return Control{}, false
}
