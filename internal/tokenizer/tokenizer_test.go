package tokenizer

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateChars(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abc", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
		{"héllo wörld", 2}, // counted in runes, not bytes
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateChars(tt.text), "text %q", tt.text)
	}
}

func TestCharRatio_Monotonic(t *testing.T) {
	tok := CharRatio{}
	prev := 0
	text := ""
	for i := 0; i < 200; i++ {
		text += "ab"
		n := tok.EstimateTokenCount(text)
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
	assert.Equal(t, ProviderCharRatio, tok.ModelName())
}

type fakeEncoder struct {
	calls atomic.Int32
	panic bool
}

func (f *fakeEncoder) Encode(text string, _, _ []string) []int {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	return make([]int, len(strings.Fields(text)))
}

func withEncoder(t *testing.T, enc encoder, err error) {
	t.Helper()
	orig := loadEncoder
	loadEncoder = func(string) (encoder, error) { return enc, err }
	t.Cleanup(func() { loadEncoder = orig })
}

func TestTiktoken_UsesEncoder(t *testing.T) {
	enc := &fakeEncoder{}
	withEncoder(t, enc, nil)

	tok := NewTiktoken("gpt-4", nil)
	assert.True(t, tok.Available())
	assert.Equal(t, 3, tok.EstimateTokenCount("one two three"))
	assert.Equal(t, 0, tok.EstimateTokenCount(""))
	assert.Equal(t, 1, tok.EstimateTokenCount("   "), "non-empty text never counts as zero")
	assert.Equal(t, "gpt-4", tok.ModelName())
}

func TestTiktoken_FallsBackWhenUnavailable(t *testing.T) {
	withEncoder(t, nil, errors.New("offline"))

	tok := NewTiktoken("", nil)
	assert.False(t, tok.Available())
	text := strings.Repeat("y", 40)
	assert.Equal(t, EstimateChars(text), tok.EstimateTokenCount(text))
	assert.Equal(t, DefaultEncoding, tok.ModelName())
}

func TestTiktoken_FallsBackOnPanic(t *testing.T) {
	withEncoder(t, &fakeEncoder{panic: true}, nil)

	tok := NewTiktoken("gpt-4", nil)
	text := strings.Repeat("z", 80)
	assert.Equal(t, 20, tok.EstimateTokenCount(text))
}

func TestCached(t *testing.T) {
	enc := &fakeEncoder{}
	withEncoder(t, enc, nil)

	c, err := NewCached(NewTiktoken("gpt-4", nil), 8)
	require.NoError(t, err)

	assert.Equal(t, 2, c.EstimateTokenCount("a b"))
	assert.Equal(t, 2, c.EstimateTokenCount("a b"))
	assert.Equal(t, int32(1), enc.calls.Load())
	assert.Equal(t, 1, c.Len())

	_, err = NewCached(CharRatio{}, 0)
	assert.ErrorIs(t, err, ErrInvalidCacheSize)
}

func TestNew(t *testing.T) {
	tok, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, CharRatio{}, tok)

	tok, err = New(Options{Provider: "charratio", CacheSize: 16})
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, tok)

	_, err = New(Options{Provider: "sentencepiece"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestEstimateTokenCountContext(t *testing.T) {
	n, err := EstimateTokenCountContext(context.Background(), CharRatio{}, "abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EstimateTokenCountContext(ctx, CharRatio{}, "abcdefgh")
	assert.ErrorIs(t, err, context.Canceled)
}
