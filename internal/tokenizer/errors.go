package tokenizer

import "errors"

var (
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown tokenizer provider")

	// ErrInvalidCacheSize is returned by NewCached for a non-positive size.
	ErrInvalidCacheSize = errors.New("cache size must be positive")
)
