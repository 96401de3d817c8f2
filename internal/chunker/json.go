package chunker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// JSON chunks JSON documents along their tree shape, addressing each chunk
// with a path such as $.servers[2].host.
type JSON struct {
	tok         tokenizer.Tokenizer
	logger      *zap.Logger
	maxTokens   int
	keepProps   int
	keepItems   int
	splitFactor int
	text        *PlainText
}

// NewJSON returns a JSON chunker using the config budget. Malformed input
// is chunked as plain text with the text overlap.
func NewJSON(tok tokenizer.Tokenizer, limits Limits, logger *zap.Logger) *JSON {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSON{
		tok:         tok,
		logger:      logger,
		maxTokens:   limits.MaxConfigTokens,
		keepProps:   limits.JSONKeepObjectProperties,
		keepItems:   limits.JSONKeepArrayItems,
		splitFactor: limits.JSONArraySplitFactor,
		text:        NewPlainText(tok, limits.MaxConfigTokens, limits.TextOverlapTokens, logger),
	}
}

// Chunk implements Strategy.
func (j *JSON) Chunk(req Request) ([]*types.Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := newEmitter(req, j.tok, attr{types.MetaFormat, FormatJSON})
	if isBlank(req.Content) {
		j.logger.Debug("empty json, nothing to chunk", zap.String("file", req.FilePath))
		return e.chunks, nil
	}

	doc := strings.TrimSpace(req.Content)
	if j.tokens(doc) <= j.maxTokens {
		e.emit(doc)
		return e.chunks, nil
	}

	data := []byte(doc)
	if !json.Valid(data) {
		j.logger.Info("malformed json, falling back to plain text", zap.String("file", req.FilePath))
		return j.text.Chunk(req)
	}

	root, typ, _, err := jsonparser.Get(data)
	if err == nil {
		err = j.walk(e, root, typ, "$")
	}
	if err != nil {
		j.logger.Warn("json traversal failed, falling back to plain text",
			zap.String("file", req.FilePath), zap.Error(err))
		return j.text.Chunk(req)
	}
	return e.chunks, nil
}

// walk visits a node depth-first, emitting it whole when it is a scalar,
// fits the budget or is a small container of scalars.
func (j *JSON) walk(e *emitter, raw []byte, typ jsonparser.ValueType, path string) error {
	content := rawJSON(raw, typ)
	emit := func() {
		e.emit(content, attr{types.MetaJSONPath, path}, attr{types.MetaValueKind, typ.String()})
	}

	if typ != jsonparser.Object && typ != jsonparser.Array {
		emit()
		return nil
	}
	tokens := j.tokens(content)
	if tokens <= j.maxTokens || j.keepWhole(raw, typ) {
		emit()
		return nil
	}

	if typ == jsonparser.Object {
		return jsonparser.ObjectEach(raw, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
			return j.walk(e, value, dataType, path+"."+string(key))
		})
	}

	if tokens <= j.maxTokens*j.splitFactor {
		emit()
		return nil
	}
	var walkErr error
	i := 0
	_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if walkErr != nil {
			return
		}
		if err != nil {
			walkErr = err
			return
		}
		walkErr = j.walk(e, value, dataType, fmt.Sprintf("%s[%d]", path, i))
		i++
	})
	if err != nil {
		return err
	}
	return walkErr
}

// keepWhole reports whether a container is small enough, and flat enough,
// to stay one chunk even over budget.
func (j *JSON) keepWhole(raw []byte, typ jsonparser.ValueType) bool {
	n := 0
	flat := true
	note := func(dataType jsonparser.ValueType) {
		n++
		if dataType == jsonparser.Object || dataType == jsonparser.Array {
			flat = false
		}
	}

	switch typ {
	case jsonparser.Object:
		err := jsonparser.ObjectEach(raw, func(_, _ []byte, dataType jsonparser.ValueType, _ int) error {
			note(dataType)
			return nil
		})
		return err == nil && flat && n <= j.keepProps
	case jsonparser.Array:
		_, err := jsonparser.ArrayEach(raw, func(_ []byte, dataType jsonparser.ValueType, _ int, _ error) {
			note(dataType)
		})
		return err == nil && flat && n <= j.keepItems
	}
	return true
}

// rawJSON restores the quotes jsonparser strips from string values.
func rawJSON(raw []byte, typ jsonparser.ValueType) string {
	if typ == jsonparser.String {
		return `"` + string(raw) + `"`
	}
	return string(raw)
}

func (j *JSON) tokens(s string) int {
	return j.tok.EstimateTokenCount(s)
}
