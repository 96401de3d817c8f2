package chunker

import "errors"

// ErrInvalidLimits is returned when a budget cannot be honoured.
var ErrInvalidLimits = errors.New("invalid chunking limits")
