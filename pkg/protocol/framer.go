package protocol

import "strings"

// keepAlivePadding is the number of trailing spaces the gateway may append
// to a line. Only this many are stripped; anything beyond is payload.
const keepAlivePadding = 2

// Framer reassembles arbitrary text chunks into complete protocol lines.
// Line terminator is LF; a CR immediately before it belongs to the terminator.
//
// A Framer has a single reader and must not be shared between goroutines.
type Framer struct {
	pending strings.Builder
}

// Write appends a chunk and returns every line it completed, in arrival order.
// The unterminated suffix is retained for the next call. Empty lines are
// dropped.
func (f *Framer) Write(chunk string) []string {
	var lines []string
	for {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			f.pending.WriteString(chunk)
			return lines
		}

		var line string
		if f.pending.Len() > 0 {
			f.pending.WriteString(chunk[:i])
			line = f.pending.String()
			f.pending.Reset()
		} else {
			line = chunk[:i]
		}
		chunk = chunk[i+1:]

		line = strings.TrimSuffix(line, "\r")
		line = trimPadding(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
}

// Pending returns the retained unterminated fragment.
func (f *Framer) Pending() string {
	return f.pending.String()
}

// Reset discards the retained fragment without emitting it.
func (f *Framer) Reset() {
	f.pending.Reset()
}

func trimPadding(line string) string {
	for n := 0; n < keepAlivePadding && strings.HasSuffix(line, " "); n++ {
		line = line[:len(line)-1]
	}
	return line
}
