package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTokenize(t *testing.T) {
	p, err := Tokenize("/msg  bob   hello   there ")
	require.NoError(t, err)

	assert.Equal(t, "MSG", p.Command)
	assert.Equal(t, []string{"bob", "hello", "there"}, p.Params)
	assert.Equal(t, []string{"bob   hello   there ", "hello   there ", "there "}, p.Rest)
	assert.Equal(t, "", p.Param(3))
	assert.Equal(t, "", p.RestOf(3))
	assert.Equal(t, 3, p.TokenCount())
}

func TestTokenizeCapsParams(t *testing.T) {
	p, err := Tokenize("/OP a b c d e f g")
	require.NoError(t, err)

	assert.Len(t, p.Params, MaxParams)
	assert.Equal(t, "e f g", p.Rest[4])
	assert.Equal(t, 7, p.TokenCount())
}

func TestTokenizeBareCommand(t *testing.T) {
	p, err := Tokenize("/motd")
	require.NoError(t, err)
	assert.Equal(t, "MOTD", p.Command)
	assert.Empty(t, p.Params)
	assert.Empty(t, p.Rest)
	assert.Equal(t, 0, p.TokenCount())
}

func TestTokenizeNotCommand(t *testing.T) {
	_, err := Tokenize("hello")
	assert.ErrorIs(t, err, ErrNotCommand)
}

// TestTokenizeRestProperty checks that every Rest[i] starts with Params[i]
// and is a suffix of the input.
func TestTokenizeRestProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keyword := rapid.StringMatching(`[A-Za-z]{1,8}`).Draw(t, "keyword")
		words := rapid.SliceOfN(rapid.StringMatching(`[!-~]{1,6}`), 0, 9).Draw(t, "words")
		sep := rapid.SampledFrom([]string{" ", "  ", "\t"}).Draw(t, "sep")

		text := "/" + keyword
		if len(words) > 0 {
			text += sep + strings.Join(words, sep)
		}

		p, err := Tokenize(text)
		if err != nil {
			t.Fatalf("tokenize %q: %v", text, err)
		}
		if p.Command != strings.ToUpper(keyword) {
			t.Fatalf("command: got %q", p.Command)
		}
		if len(p.Params) != min(len(words), MaxParams) || len(p.Rest) != len(p.Params) {
			t.Fatalf("got %d params / %d rests for %d words", len(p.Params), len(p.Rest), len(words))
		}
		for i := range p.Params {
			if p.Params[i] != words[i] {
				t.Fatalf("param %d: got %q, want %q", i, p.Params[i], words[i])
			}
			if !strings.HasPrefix(p.Rest[i], p.Params[i]) || !strings.HasSuffix(text, p.Rest[i]) {
				t.Fatalf("rest %d %q inconsistent with %q", i, p.Rest[i], text)
			}
		}
		if p.TokenCount() != len(words) {
			t.Fatalf("token count: got %d, want %d", p.TokenCount(), len(words))
		}
	})
}
