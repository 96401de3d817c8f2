// Package tokenizer estimates token counts for chunk budgeting.
//
// CharRatio is the default: zero for empty text, otherwise one token per
// four characters with a floor of one. Tiktoken counts real BPE tokens via
// tiktoken-go and silently degrades to the character estimate when its
// encoding cannot be loaded. Cached puts an LRU in front of either.
//
//	tok, err := tokenizer.New(tokenizer.Options{Provider: "tiktoken", CacheSize: 4096})
//	n := tok.EstimateTokenCount(text)
package tokenizer
