package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultEncoding is used when the model name is empty or unknown.
const DefaultEncoding = "cl100k_base"

// encoder is the subset of *tiktoken.Tiktoken we depend on.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// loadEncoder resolves a model or encoding name. Replaced in tests.
var loadEncoder = func(model string) (encoder, error) {
	if model == "" {
		return tiktoken.GetEncoding(DefaultEncoding)
	}
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc, nil
	}
	return tiktoken.GetEncoding(model)
}

// Tiktoken counts BPE tokens. When the encoding cannot be loaded, or
// encoding a text fails, it falls back to the character estimate so that
// chunking never aborts on a tokenizer problem.
type Tiktoken struct {
	model  string
	logger *zap.Logger

	once    sync.Once
	enc     encoder
	loadErr error
}

// NewTiktoken returns a tokenizer for the given model. The encoding is
// loaded lazily on first use.
func NewTiktoken(model string, logger *zap.Logger) *Tiktoken {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiktoken{model: model, logger: logger}
}

// ModelName implements Tokenizer.
func (t *Tiktoken) ModelName() string {
	if t.model == "" {
		return DefaultEncoding
	}
	return t.model
}

// Available reports whether the BPE encoding loaded successfully.
func (t *Tiktoken) Available() bool {
	t.load()
	return t.loadErr == nil
}

// EstimateTokenCount implements Tokenizer.
func (t *Tiktoken) EstimateTokenCount(text string) int {
	if text == "" {
		return 0
	}
	t.load()
	if t.loadErr != nil {
		return EstimateChars(text)
	}
	n, err := t.encode(text)
	if err != nil {
		t.logger.Debug("tiktoken encode failed, using character estimate", zap.Error(err))
		return EstimateChars(text)
	}
	if n < 1 {
		return 1
	}
	return n
}

func (t *Tiktoken) load() {
	t.once.Do(func() {
		enc, err := loadEncoder(t.model)
		if err != nil {
			t.loadErr = err
			t.logger.Warn("tiktoken encoding unavailable, falling back to character estimate",
				zap.String("model", t.ModelName()),
				zap.Error(err))
			return
		}
		t.enc = enc
	})
}

func (t *Tiktoken) encode(text string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encode panic: %v", r)
		}
	}()
	return len(t.enc.Encode(text, nil, nil)), nil
}
