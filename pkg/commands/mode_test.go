package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeShapes(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		origin Origin
		ctx    fakeContext
		want   string
	}{
		{"bare in channel", "/MODE", inChannel, testCtx, "MODE #x"},
		{"bare in server window", "/MODE", inServer, testCtx, "MODE alice"},
		{"bare in private window", "/MODE", inPrivate, testCtx, "MODE alice"},
		{"self by name", "/MODE alice", inServer, testCtx, "MODE alice"},
		{"self by name with modes", "/MODE ALICE +i", inChannel, testCtx, "MODE ALICE +i"},
		{"origin channel modes", "/MODE +nt", inChannel, testCtx, "MODE #x +nt"},
		{"origin channel with args", "/MODE +b *!*@spam.example", inChannel, testCtx, "MODE #x +b *!*@spam.example"},
		{"implied self", "/MODE -w", inServer, testCtx, "MODE alice -w"},
		{"implied self from private", "/MODE +i", inPrivate, testCtx, "MODE alice +i"},
		{"explicit channel query", "/MODE #y", inServer, testCtx, "MODE #y"},
		{"explicit channel set", "/MODE #y +k  key", inChannel, testCtx, "MODE #y +k  key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Synthesize(tt.ctx, Input{Text: tt.text, Origin: tt.origin})
			require.NoError(t, res.Err)
			assert.Equal(t, tt.want, res.Line)
		})
	}
}

func TestModeShapeErrors(t *testing.T) {
	noNick := fakeContext{prefixes: "#&"}

	tests := []struct {
		name   string
		text   string
		origin Origin
		ctx    fakeContext
	}{
		{"other user", "/MODE bob", inServer, testCtx},
		{"other user in channel", "/MODE bob +i", inChannel, testCtx},
		{"bare without nick", "/MODE", inServer, noNick},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Synthesize(tt.ctx, Input{Text: tt.text, Origin: tt.origin})
			assert.Error(t, res.Err)
			assert.NotEmpty(t, res.UsageMessage())
		})
	}
}

// A nick that collides with the channel window must still be treated as
// the user's own nick because "self" precedes "origin-channel".
func TestModeShapeOrder(t *testing.T) {
	names := make([]string, 0, len(modeShapes))
	for _, s := range modeShapes {
		names = append(names, s.name)
	}
	assert.Equal(t, []string{"bare", "self", "origin-channel", "implied-self", "explicit-channel", "other-nick"}, names)

	// "&ops" is both our nick and a channel name under the '&' prefix.
	odd := fakeContext{nick: "&ops", prefixes: "#&"}
	res := Synthesize(odd, Input{Text: "/MODE &ops +i", Origin: inServer})
	require.NoError(t, res.Err)
	assert.Equal(t, "MODE &ops +i", res.Line)

	// "+x" typed in a channel goes to the channel, not to ourselves.
	res = Synthesize(testCtx, Input{Text: "/MODE +x", Origin: inChannel})
	require.NoError(t, res.Err)
	assert.Equal(t, "MODE #x +x", res.Line)
}
