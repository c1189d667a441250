package commands

import (
	"fmt"
	"strings"
)

// maxModeTargets is the most nicknames one /OP style command may name.
const maxModeTargets = 5

// channelMode builds the shared handler behind /OP, /DEOP, /VOICE and
// /DEVOICE. The channel is either the first token or the origin window.
func channelMode(sign, mode byte) buildFunc {
	return func(p ParsedCommand, in Input, ctx Context) (string, error) {
		keyword := p.Command
		names := p.Fields()

		var channel string
		switch {
		case len(names) > 0 && ctx.IsChannel(names[0]):
			channel, names = names[0], names[1:]
		case in.Origin.Kind == OriginChannel && in.Origin.Name != "":
			channel = in.Origin.Name
		default:
			return "", usagef(keyword, "/%s without a channel is only valid in a channel window", keyword)
		}

		if len(names) == 0 {
			return "", usagef(keyword, "Expect: /%s [#channel] <nick1> [nick2] ... (max %d)", keyword, maxModeTargets)
		}
		if len(names) > maxModeTargets {
			return "", usagef(keyword, "/%s accepts a maximum of %d nicknames", keyword, maxModeTargets)
		}
		for _, name := range names {
			if ctx.IsChannel(name) {
				return "", usagef(keyword, "/%s target %q is a channel, expected a nickname", keyword, name)
			}
		}

		modes := string(sign) + strings.Repeat(string(mode), len(names))
		return fmt.Sprintf("MODE %s %s %s", channel, modes, strings.Join(names, " ")), nil
	}
}

// modeShape is one legal form of /MODE. Shapes overlap, so modeShapes is
// evaluated strictly in order and the first match wins.
type modeShape struct {
	name  string
	match func(p ParsedCommand, in Input, ctx Context) bool
	build buildFunc
}

var modeShapes = []modeShape{
	{
		// /MODE
		name: "bare",
		match: func(p ParsedCommand, _ Input, _ Context) bool {
			return len(p.Params) == 0
		},
		build: func(_ ParsedCommand, in Input, ctx Context) (string, error) {
			if in.Origin.Kind == OriginChannel && in.Origin.Name != "" {
				return "MODE " + in.Origin.Name, nil
			}
			if ctx.OwnNick() == "" {
				return "", usagef("MODE", "Expect: /MODE [#channel|nickname] [modes] [arguments]")
			}
			return "MODE " + ctx.OwnNick(), nil
		},
	},
	{
		// /MODE ownnick [+i]
		name: "self",
		match: func(p ParsedCommand, _ Input, ctx Context) bool {
			return ctx.OwnNick() != "" && strings.EqualFold(p.Params[0], ctx.OwnNick())
		},
		build: func(p ParsedCommand, _ Input, _ Context) (string, error) {
			return "MODE " + p.Rest[0], nil
		},
	},
	{
		// /MODE +nt typed in a channel window
		name: "origin-channel",
		match: func(p ParsedCommand, in Input, _ Context) bool {
			return isModeString(p.Params[0]) && in.Origin.Kind == OriginChannel && in.Origin.Name != ""
		},
		build: func(p ParsedCommand, in Input, _ Context) (string, error) {
			return "MODE " + in.Origin.Name + " " + p.Rest[0], nil
		},
	},
	{
		// /MODE +i typed anywhere else applies to ourselves
		name: "implied-self",
		match: func(p ParsedCommand, _ Input, ctx Context) bool {
			return isModeString(p.Params[0]) && ctx.OwnNick() != ""
		},
		build: func(p ParsedCommand, _ Input, ctx Context) (string, error) {
			return "MODE " + ctx.OwnNick() + " " + p.Rest[0], nil
		},
	},
	{
		// /MODE #channel [modes] [arguments]
		name: "explicit-channel",
		match: func(p ParsedCommand, _ Input, ctx Context) bool {
			return ctx.IsChannel(p.Params[0])
		},
		build: func(p ParsedCommand, _ Input, _ Context) (string, error) {
			return "MODE " + p.Rest[0], nil
		},
	},
	{
		// /MODE othernick ...
		name: "other-nick",
		match: func(ParsedCommand, Input, Context) bool {
			return true
		},
		build: func(p ParsedCommand, _ Input, _ Context) (string, error) {
			return "", usagef("MODE", "/MODE can not view or change user modes of %s", p.Params[0])
		},
	},
}

func buildMode(p ParsedCommand, in Input, ctx Context) (string, error) {
	for _, shape := range modeShapes {
		if shape.match(p, in, ctx) {
			return shape.build(p, in, ctx)
		}
	}
	return "", usagef("MODE", "Expect: /MODE [#channel|nickname] [modes] [arguments]")
}

func isModeString(s string) bool {
	return len(s) > 1 && (s[0] == '+' || s[0] == '-')
}
