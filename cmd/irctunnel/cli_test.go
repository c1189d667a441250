package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStream(t *testing.T) {
	in := strings.NewReader("HEARTBEAT\r\n@time=2023-09-08T14:53:41.504Z ERROR :oops\r\n" +
		":bob!b@host PRIVMSG alice :\x01PING 123\x01\r\nLAG=0.5000000\npartial")

	var out bytes.Buffer
	require.NoError(t, decodeStream(in, &out, "alice", time.UTC))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)

	var got []map[string]any
	for _, l := range lines {
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &v))
		got = append(got, v)
	}

	assert.Equal(t, "HEARTBEAT", got[0]["control"])

	msg := got[1]["message"].(map[string]any)
	assert.Equal(t, "ERROR", msg["command"])
	assert.Equal(t, "14:53:41", msg["timestamp"])
	assert.Equal(t, "2023-09-08", msg["datestamp"])

	ctcp := got[2]["ctcp"].(map[string]any)
	assert.Equal(t, "PING", ctcp["command"])
	assert.Equal(t, "123", ctcp["args"])
	assert.Equal(t, "request-received", got[2]["direction"])

	assert.Equal(t, "LAG", got[3]["control"])
	assert.Equal(t, 0.5, got[3]["lag"])
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSendCommandLine(t *testing.T) {
	out, err := runCLI(t, "send", "--channel", "#go", "/op", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "MODE #go +oo alice bob\n", out)

	_, err = runCLI(t, "send", "--channel", "", "/op", "alice")
	assert.EqualError(t, err, "/OP without a channel is only valid in a channel window")

	_, err = runCLI(t, "send", "hello")
	assert.Error(t, err)
}
