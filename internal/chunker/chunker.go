package chunker

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

// Request is one file handed to a chunker. Content is already in memory;
// chunkers never read from disk.
type Request struct {
	Content   string
	FilePath  string
	ProjectID string
	UserID    string
	Language  string // optional override of the language derived from the extension
}

// Validate checks the identifiers every chunk must carry.
func (r Request) Validate() error {
	switch {
	case r.FilePath == "":
		return fmt.Errorf("%w: file path is required", types.ErrInvalidRequest)
	case r.ProjectID == "":
		return fmt.Errorf("%w: project id is required", types.ErrInvalidRequest)
	case r.UserID == "":
		return fmt.Errorf("%w: user id is required", types.ErrInvalidRequest)
	}
	return nil
}

// Strategy chunks one class of content. Implementations are stateless
// across calls and safe for concurrent use.
type Strategy interface {
	Chunk(req Request) ([]*types.Chunk, error)
}

// Limits holds the per-class token budgets and overlaps.
type Limits struct {
	MaxCodeTokens         int
	CodeOverlapLines      int
	MaxMarkdownTokens     int
	MarkdownOverlapTokens int
	MaxConfigTokens       int
	MaxTextTokens         int
	TextOverlapTokens     int

	// JSON traversal tunables
	JSONKeepObjectProperties int
	JSONKeepArrayItems       int
	JSONArraySplitFactor     int
}

// DefaultLimits returns the stock budgets.
func DefaultLimits() Limits {
	return Limits{
		MaxCodeTokens:            1500,
		CodeOverlapLines:         3,
		MaxMarkdownTokens:        1000,
		MarkdownOverlapTokens:    100,
		MaxConfigTokens:          750,
		MaxTextTokens:            500,
		TextOverlapTokens:        50,
		JSONKeepObjectProperties: 10,
		JSONKeepArrayItems:       20,
		JSONArraySplitFactor:     2,
	}
}

// Validate rejects budgets the algorithms cannot make progress with.
func (l Limits) Validate() error {
	for name, v := range map[string]int{
		"max code tokens":     l.MaxCodeTokens,
		"max markdown tokens": l.MaxMarkdownTokens,
		"max config tokens":   l.MaxConfigTokens,
		"max text tokens":     l.MaxTextTokens,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidLimits, name, v)
		}
	}
	for name, v := range map[string]int{
		"code overlap lines":      l.CodeOverlapLines,
		"markdown overlap tokens": l.MarkdownOverlapTokens,
		"text overlap tokens":     l.TextOverlapTokens,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalidLimits, name, v)
		}
	}
	if l.JSONKeepObjectProperties < 0 || l.JSONKeepArrayItems < 0 || l.JSONArraySplitFactor < 1 {
		return fmt.Errorf("%w: json thresholds out of range", ErrInvalidLimits)
	}
	return nil
}

// attr is one chunker-specific metadata entry.
type attr struct {
	key, value string
}

func flag(key string) attr { return attr{key, "true"} }

// emitter accumulates chunks for a single file, assigning contiguous
// indices and skipping blank content.
type emitter struct {
	req    Request
	tok    tokenizer.Tokenizer
	base   []attr
	chunks []*types.Chunk
}

func newEmitter(req Request, tok tokenizer.Tokenizer, base ...attr) *emitter {
	return &emitter{req: req, tok: tok, base: base, chunks: make([]*types.Chunk, 0)}
}

func (e *emitter) emit(content string, attrs ...attr) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	index := len(e.chunks)

	md := types.NewMetadata().
		Set(types.MetaUserID, e.req.UserID).
		Set(types.MetaProjectID, e.req.ProjectID).
		Set(types.MetaFilePath, e.req.FilePath).
		Set(types.MetaFileName, fileName(e.req.FilePath)).
		Set(types.MetaFileType, fileType(e.req.FilePath)).
		Set(types.MetaChunkIndex, strconv.Itoa(index))
	for _, a := range e.base {
		md.Set(a.key, a.value)
	}
	for _, a := range attrs {
		md.Set(a.key, a.value)
	}

	e.chunks = append(e.chunks, types.NewChunk(content, e.req.FilePath, index, e.tok.EstimateTokenCount(content), md))
}

// fileName returns the last path element, accepting both separators.
func fileName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// fileType returns the lower-cased extension including the dot.
func fileType(p string) string {
	return strings.ToLower(filepath.Ext(fileName(p)))
}

// isBlank reports whether s has no visible characters.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
