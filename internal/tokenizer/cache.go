package tokenizer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoises estimates per distinct text. The recursive splitter asks
// for the same substrings many times, so this pays off for BPE tokenizers.
type Cached struct {
	inner Tokenizer
	cache *lru.Cache[string, int]
}

// NewCached wraps inner with an LRU cache holding up to size entries.
func NewCached(inner Tokenizer, size int) (*Cached, error) {
	if size <= 0 {
		return nil, ErrInvalidCacheSize
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// EstimateTokenCount implements Tokenizer.
func (c *Cached) EstimateTokenCount(text string) int {
	if n, ok := c.cache.Get(text); ok {
		return n
	}
	n := c.inner.EstimateTokenCount(text)
	c.cache.Add(text, n)
	return n
}

// ModelName implements Tokenizer.
func (c *Cached) ModelName() string {
	return c.inner.ModelName()
}

// Len returns the number of cached estimates.
func (c *Cached) Len() int {
	return c.cache.Len()
}
