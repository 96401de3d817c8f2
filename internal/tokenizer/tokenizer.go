package tokenizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderCharRatio = "charratio"
	ProviderTiktoken  = "tiktoken"
)

// CharsPerToken is the ratio used by the character estimate.
const CharsPerToken = 4

// Tokenizer estimates how many model tokens a text occupies.
// Implementations must be deterministic, monotonic in text length and safe
// for concurrent use.
type Tokenizer interface {
	EstimateTokenCount(text string) int
	ModelName() string
}

// Options configures New.
type Options struct {
	Provider  string // charratio (default) or tiktoken
	Model     string // model or encoding name for tiktoken
	CacheSize int    // entries in the estimate cache, 0 disables caching
	Logger    *zap.Logger
}

// New builds a tokenizer from options.
func New(opts Options) (Tokenizer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var t Tokenizer
	switch strings.ToLower(opts.Provider) {
	case "", ProviderCharRatio:
		t = CharRatio{}
	case ProviderTiktoken:
		t = NewTiktoken(opts.Model, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, opts.Provider)
	}

	if opts.CacheSize > 0 {
		cached, err := NewCached(t, opts.CacheSize)
		if err != nil {
			return nil, err
		}
		t = cached
	}
	return t, nil
}

// CharRatio estimates one token per four characters, with a minimum of one
// token for any non-empty text.
type CharRatio struct{}

// EstimateTokenCount implements Tokenizer.
func (CharRatio) EstimateTokenCount(text string) int {
	return EstimateChars(text)
}

// ModelName implements Tokenizer.
func (CharRatio) ModelName() string {
	return ProviderCharRatio
}

// EstimateChars is the character-ratio estimate: 0 for empty text,
// otherwise max(1, runes/4).
func EstimateChars(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / CharsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// EstimateTokenCountContext runs the estimate on its own goroutine and
// returns early if ctx is done first.
func EstimateTokenCountContext(ctx context.Context, t Tokenizer, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	done := make(chan int, 1)
	go func() {
		done <- t.EstimateTokenCount(text)
	}()
	select {
	case n := <-done:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
