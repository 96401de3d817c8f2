package chunker

import (
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

// YAML chunks YAML by top-level keys using indentation alone; it never
// parses the document, so invalid YAML chunks the same way as valid YAML.
type YAML struct {
	tok       tokenizer.Tokenizer
	logger    *zap.Logger
	maxTokens int
	text      *PlainText
}

// NewYAML returns a YAML chunker using the config budget.
func NewYAML(tok tokenizer.Tokenizer, limits Limits, logger *zap.Logger) *YAML {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YAML{
		tok:       tok,
		logger:    logger,
		maxTokens: limits.MaxConfigTokens,
		text:      NewPlainText(tok, limits.MaxConfigTokens, 0, logger),
	}
}

// Chunk implements Strategy.
func (y *YAML) Chunk(req Request) ([]*types.Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := newEmitter(req, y.tok, attr{types.MetaFormat, FormatYAML})
	if isBlank(req.Content) {
		y.logger.Debug("empty yaml, nothing to chunk", zap.String("file", req.FilePath))
		return e.chunks, nil
	}
	if y.tokens(strings.TrimSpace(req.Content)) <= y.maxTokens {
		e.emit(req.Content)
		return e.chunks, nil
	}

	var (
		buf         []string
		substantive bool // buf holds more than comments and document markers
		large       bool // the current section has already been force-flushed
		top         = -1
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		if large {
			e.emit(strings.Join(buf, "\n"), flag(types.MetaIsLargeSection))
		} else {
			e.emit(strings.Join(buf, "\n"))
		}
		buf, substantive = nil, false
	}

	for _, raw := range strings.Split(req.Content, "\n") {
		line := strings.TrimRight(raw, "\r")
		if isBlank(line) {
			if len(buf) > 0 {
				buf = append(buf, line)
			}
			continue
		}

		stripped := strings.TrimSpace(line)
		if isDocumentMarker(line) {
			flush()
			large = false
			top = -1
			buf = append(buf, line)
			continue
		}

		if isTopLevelKey(line, stripped, &top) {
			if substantive {
				flush()
			}
			large = false
		}

		if len(buf) > 0 && y.tokens(strings.TrimSpace(strings.Join(append(buf, line), "\n"))) > y.maxTokens {
			large = true
			flush()
		}

		if y.tokens(stripped) > y.maxTokens {
			flush()
			for _, piece := range y.text.Split(line) {
				e.emit(piece.Text, flag(types.MetaIsLargeSection), flag(types.MetaIsForceChunked))
			}
			large = true
			continue
		}

		buf = append(buf, line)
		if !strings.HasPrefix(stripped, "#") {
			substantive = true
		}
	}
	flush()
	return e.chunks, nil
}

// isTopLevelKey reports whether line starts a new top-level section. The
// first key line fixes the top-level column; later key lines at or left of
// it start new sections. List items never do.
func isTopLevelKey(line, stripped string, top *int) bool {
	if strings.HasPrefix(stripped, "#") || strings.HasPrefix(stripped, "- ") || stripped == "-" {
		return false
	}
	if !strings.Contains(stripped, ":") {
		return false
	}
	indent := indentWidth(line)
	if *top < 0 {
		*top = indent
		return true
	}
	return indent <= *top
}

// isDocumentMarker matches "---" and "..." at column zero.
func isDocumentMarker(line string) bool {
	for _, marker := range []string{"---", "..."} {
		if line == marker || strings.HasPrefix(line, marker+" ") || strings.HasPrefix(line, marker+"\t") {
			return true
		}
	}
	return false
}

func (y *YAML) tokens(s string) int {
	return y.tok.EstimateTokenCount(s)
}
