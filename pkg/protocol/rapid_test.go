package protocol

import (
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// lineGen draws a well-formed protocol line: no terminators, no leading or
// trailing spaces.
func lineGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9:#!@.]([A-Za-z0-9:#!@. ]{0,40}[A-Za-z0-9:#!@.])?`)
}

// TestFramerSplitInvariance checks that chunk boundaries never change the
// emitted line sequence.
func TestFramerSplitInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOfN(lineGen(), 1, 20).Draw(t, "lines")
		crlf := rapid.Bool().Draw(t, "crlf")

		term := "\n"
		if crlf {
			term = "\r\n"
		}
		buffer := strings.Join(lines, term) + term

		// Cut the buffer at arbitrary byte offsets.
		var chunks []string
		rest := buffer
		for len(rest) > 0 {
			n := rapid.IntRange(1, len(rest)).Draw(t, "chunkLen")
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}

		var whole Framer
		want := whole.Write(buffer)

		var split Framer
		var got []string
		for _, chunk := range chunks {
			got = append(got, split.Write(chunk)...)
		}

		if len(got) != len(want) {
			t.Fatalf("line count mismatch: got %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("line %d mismatch: got %q, want %q", i, got[i], want[i])
			}
			if got[i] != lines[i] {
				t.Fatalf("line %d altered: got %q, sent %q", i, got[i], lines[i])
			}
		}
		if split.Pending() != "" {
			t.Fatalf("unexpected pending fragment %q", split.Pending())
		}
	})
}

// TestParseNeverPanics feeds arbitrary text to the parser.
func TestParseNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		line := rapid.String().Draw(t, "line")
		msg := ParseAt(line, time.UTC)

		if msg.Command == "" && len(msg.Params) != 0 {
			t.Fatalf("params without command: %#v", msg)
		}
		if (msg.Nick == "") != (msg.Host == "") {
			t.Fatalf("partial prefix decomposition: nick=%q host=%q", msg.Nick, msg.Host)
		}
		for i, p := range msg.Params[:max(len(msg.Params)-1, 0)] {
			if strings.Contains(p, " ") {
				t.Fatalf("middle param %d contains a space: %q", i, p)
			}
		}
	})
}

// TestParseTrailingRoundTrip checks that any trailing text survives parsing.
func TestParseTrailingRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nick := rapid.StringMatching(`[a-z][a-z0-9]{0,8}`).Draw(t, "nick")
		target := rapid.StringMatching(`#[a-z]{1,10}`).Draw(t, "target")
		text := rapid.StringMatching(`[ -~]{0,60}`).Draw(t, "text")

		msg := ParseAt(":"+nick+"!u@h PRIVMSG "+target+" :"+text, time.UTC)

		if msg.Nick != nick {
			t.Fatalf("nick: got %q, want %q", msg.Nick, nick)
		}
		if len(msg.Params) != 2 || msg.Params[0] != target || msg.Params[1] != text {
			t.Fatalf("params: got %q", msg.Params)
		}
	})
}
