package types

import "errors"

// Domain errors for chunk validation and chunker requests
var (
	// Chunk errors
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrInvalidChunkIndex = errors.New("invalid chunk index")
	ErrInvalidTokenCount = errors.New("token count must be >= 0")
	ErrMissingMetadata   = errors.New("required metadata missing")
	ErrHashMismatch      = errors.New("content hash does not match content")

	// Request errors
	ErrInvalidRequest = errors.New("invalid chunk request")
)
