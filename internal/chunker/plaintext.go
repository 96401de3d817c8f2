package chunker

import (
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

// DefaultSeparators are tried in order, coarsest first. The empty separator
// means "split anywhere" and triggers the character-level split.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// breakLookback is how far back from a forced cut point we look for a
// natural break character.
const breakLookback = 50

const breakChars = " \n\r\t.,;:!?"

// Piece is one segment produced by the recursive splitter.
type Piece struct {
	Text   string
	Forced bool // produced by the character-level split
}

// PlainText splits arbitrary text on a preference-ordered list of
// separators, falling back to a character-width split with overlap.
type PlainText struct {
	tok        tokenizer.Tokenizer
	logger     *zap.Logger
	maxTokens  int
	overlap    int
	separators []string
}

// NewPlainText returns a splitter with the given budget and overlap, both
// measured in tokens.
func NewPlainText(tok tokenizer.Tokenizer, maxTokens, overlapTokens int, logger *zap.Logger) *PlainText {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlainText{
		tok:        tok,
		logger:     logger,
		maxTokens:  maxTokens,
		overlap:    overlapTokens,
		separators: append([]string(nil), DefaultSeparators...),
	}
}

// WithSeparators returns a copy that splits on seps instead of the defaults.
func (p *PlainText) WithSeparators(seps []string) *PlainText {
	cp := *p
	cp.separators = append([]string(nil), seps...)
	return &cp
}

// WithLimits returns a copy using a different budget and overlap.
func (p *PlainText) WithLimits(maxTokens, overlapTokens int) *PlainText {
	cp := *p
	cp.maxTokens = maxTokens
	cp.overlap = overlapTokens
	return &cp
}

// Chunk implements Strategy.
func (p *PlainText) Chunk(req Request) ([]*types.Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := newEmitter(req, p.tok)
	if isBlank(req.Content) {
		p.logger.Debug("empty content, nothing to chunk", zap.String("file", req.FilePath))
		return e.chunks, nil
	}
	for _, piece := range p.Split(req.Content) {
		if piece.Forced {
			e.emit(piece.Text, flag(types.MetaIsForceChunked))
			continue
		}
		e.emit(piece.Text)
	}
	return e.chunks, nil
}

// Split returns the pieces for text, in order. Pieces that are blank after
// trimming are dropped.
func (p *PlainText) Split(text string) []Piece {
	if p.tokens(text) <= p.maxTokens {
		if isBlank(text) {
			return nil
		}
		return []Piece{{Text: text}}
	}
	return p.split(text, p.separators)
}

func (p *PlainText) split(text string, seps []string) []Piece {
	if isBlank(text) {
		return nil
	}
	if p.tokens(text) <= p.maxTokens {
		return []Piece{{Text: text}}
	}
	if len(seps) == 0 || seps[0] == "" {
		return p.force(text)
	}

	sep, rest := seps[0], seps[1:]
	parts := strings.Split(text, sep)
	if len(parts) <= 1 {
		return p.split(text, rest)
	}

	var out []Piece
	var buf string
	for _, part := range parts {
		if isBlank(part) {
			continue
		}
		if buf == "" {
			buf = part
			continue
		}
		candidate := buf + sep + part
		if p.tokens(candidate) <= p.maxTokens {
			buf = candidate
			continue
		}
		out = append(out, p.split(buf, rest)...)
		buf = part
	}
	if buf != "" {
		out = append(out, p.split(buf, rest)...)
	}
	return out
}

// force cuts text into windows of maxTokens*4 characters, preferring a
// break character within the last breakLookback characters of each window.
// Consecutive windows share overlap*4 characters.
func (p *PlainText) force(text string) []Piece {
	runes := []rune(text)
	width := p.maxTokens * tokenizer.CharsPerToken
	if width < 1 {
		width = 1
	}
	overlap := p.overlap * tokenizer.CharsPerToken

	var out []Piece
	start := 0
	for start < len(runes) {
		end := start + width
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		if piece := string(runes[start:end]); !isBlank(piece) {
			out = append(out, Piece{Text: piece, Forced: true})
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// breakPoint returns the cut position for the window [start, end): just
// after the last break character in the final breakLookback runes, or end
// itself when there is none.
func breakPoint(runes []rune, start, end int) int {
	floor := end - breakLookback
	if floor <= start {
		floor = start + 1
	}
	for i := end - 1; i >= floor; i-- {
		if strings.ContainsRune(breakChars, runes[i]) {
			return i + 1
		}
	}
	return end
}

func (p *PlainText) tokens(s string) int {
	return p.tok.EstimateTokenCount(s)
}
