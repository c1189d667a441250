package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramerWrite(t *testing.T) {
	tests := []struct {
		name        string
		chunks      []string
		wantLines   []string
		wantPending string
	}{
		{
			name:      "single complete line",
			chunks:    []string{"PING :server\r\n"},
			wantLines: []string{"PING :server"},
		},
		{
			name:      "bare LF terminator",
			chunks:    []string{"PING :server\n"},
			wantLines: []string{"PING :server"},
		},
		{
			name:      "two lines in one chunk",
			chunks:    []string{"A\r\nB\r\n"},
			wantLines: []string{"A", "B"},
		},
		{
			name:        "fragment retained",
			chunks:      []string{"A\r\nPRIVMSG #c"},
			wantLines:   []string{"A"},
			wantPending: "PRIVMSG #c",
		},
		{
			name:      "fragment completed by later chunk",
			chunks:    []string{"PRIVMSG #c", "han :hi\r\n"},
			wantLines: []string{"PRIVMSG #chan :hi"},
		},
		{
			name:      "terminator-only chunk flushes fragment",
			chunks:    []string{"HEARTBEAT", "\n"},
			wantLines: []string{"HEARTBEAT"},
		},
		{
			name:      "CR split from LF",
			chunks:    []string{"HEARTBEAT\r", "\n"},
			wantLines: []string{"HEARTBEAT"},
		},
		{
			name:      "two trailing pad spaces stripped",
			chunks:    []string{"HEARTBEAT  \r\n"},
			wantLines: []string{"HEARTBEAT"},
		},
		{
			name:      "only two pad spaces stripped",
			chunks:    []string{"PRIVMSG #c :x   \n"},
			wantLines: []string{"PRIVMSG #c :x "},
		},
		{
			name:      "empty lines dropped",
			chunks:    []string{"\r\n\r\nA\n\n"},
			wantLines: []string{"A"},
		},
		{
			name:        "never terminated",
			chunks:      []string{"UPDA", "TE"},
			wantPending: "UPDATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Framer
			var got []string
			for _, chunk := range tt.chunks {
				got = append(got, f.Write(chunk)...)
			}
			assert.Equal(t, tt.wantLines, got)
			assert.Equal(t, tt.wantPending, f.Pending())
		})
	}
}

func TestFramerReset(t *testing.T) {
	var f Framer
	assert.Empty(t, f.Write(":server 001 alice :Wel"))
	f.Reset()
	assert.Empty(t, f.Pending())
	assert.Equal(t, []string{"PING :x"}, f.Write("PING :x\r\n"))
}
