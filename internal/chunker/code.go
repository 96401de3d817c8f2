package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/parser"
	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

// unbalancedWindow bounds a block whose braces never balance.
const unbalancedWindow = 2000

// Block types recorded in blockType metadata.
const (
	BlockPreamble     = "preamble"
	BlockClass        = "class"
	BlockFunction     = "function"
	BlockInterstitial = "interstitial"
	BlockPostamble    = "postamble"

	ChunkTypeLineBased = "line-based"
)

// block is a located declaration within a source file.
type block struct {
	kind      string
	name      string
	start     int
	end       int
	bodyStart int // offset of the opening '{' or ':', -1 if none

	unbalanced bool // end is the fixed fallback window
}

// Code chunks source files along class and function boundaries, falling
// back to line windows when no structure is found.
type Code struct {
	tok          tokenizer.Tokenizer
	logger       *zap.Logger
	maxTokens    int
	overlapLines int
	text         *PlainText
	goParser     *parser.Parser
}

// NewCode returns a code chunker using the code budget.
func NewCode(tok tokenizer.Tokenizer, limits Limits, logger *zap.Logger) *Code {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Code{
		tok:          tok,
		logger:       logger,
		maxTokens:    limits.MaxCodeTokens,
		overlapLines: limits.CodeOverlapLines,
		text:         NewPlainText(tok, limits.MaxCodeTokens, 0, logger),
		goParser:     parser.New(),
	}
}

// Chunk implements Strategy.
func (c *Code) Chunk(req Request) ([]*types.Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ext := fileType(req.FilePath)
	lp := patternFor(ext)
	language := req.Language
	if language == "" {
		language = LanguageFor(ext)
	}
	lang := attr{types.MetaLanguage, language}

	e := newEmitter(req, c.tok, lang)
	if isBlank(req.Content) {
		c.logger.Debug("empty source, nothing to chunk", zap.String("file", req.FilePath))
		return e.chunks, nil
	}

	src := req.Content
	if c.tokens(strings.TrimSpace(src)) <= c.maxTokens {
		e.emit(src)
		return e.chunks, nil
	}

	var blocks []block
	if lp != nil {
		blocks = c.findBlocks(req.FilePath, src, lp)
	}
	if len(blocks) == 0 {
		c.logger.Info("no code blocks found, falling back to line-based chunking",
			zap.String("file", req.FilePath),
			zap.String("language", language))
		c.lineChunks(e, src, attr{types.MetaChunkType, ChunkTypeLineBased})
		return e.chunks, nil
	}

	covered := 0
	for i, b := range blocks {
		if b.start > covered {
			gapType := BlockInterstitial
			if i == 0 {
				gapType = BlockPreamble
			}
			c.emitText(e, src[covered:b.start], attr{types.MetaBlockType, gapType})
		}
		c.emitBlock(e, src, b)
		if b.end > covered {
			covered = b.end
		}
	}
	if covered < len(src) {
		c.emitText(e, src[covered:], attr{types.MetaBlockType, BlockPostamble})
	}
	return e.chunks, nil
}

// findBlocks locates class and function blocks, sorted by start offset.
// Go files use the AST when they parse; everything else, and Go files with
// syntax errors, use the pattern table.
func (c *Code) findBlocks(path, src string, lp *languagePattern) []block {
	if lp == goPattern {
		decls, err := c.goParser.Declarations(path, src)
		if err == nil {
			blocks := make([]block, 0, len(decls))
			for _, d := range decls {
				blocks = append(blocks, block{
					kind:      string(d.Kind),
					name:      d.Name,
					start:     d.Start,
					end:       d.End,
					bodyStart: d.BodyStart,
				})
			}
			return blocks
		}
		c.logger.Debug("go parse failed, using patterns", zap.String("file", path), zap.Error(err))
	}

	type candidate struct {
		kind string
		name string
		loc  []int
	}
	var cands []candidate
	collect := func(kind, placeholder string, re *regexp.Regexp) {
		for _, loc := range re.FindAllStringSubmatchIndex(src, -1) {
			name, ok := blockName(re, src, loc)
			if !ok {
				continue
			}
			if name == "" {
				name = placeholder
			}
			cands = append(cands, candidate{kind: kind, name: name, loc: loc})
		}
	}
	collect(BlockClass, "UnnamedClass", lp.typeOpener)
	collect(BlockFunction, "UnnamedFunction", lp.callable)
	if len(cands) == 0 {
		return nil
	}

	starts := make([]int, 0, len(cands))
	for _, cd := range cands {
		starts = append(starts, cd.loc[0])
	}
	sort.Ints(starts)
	nextStart := func(after int) int {
		i := sort.SearchInts(starts, after+1)
		if i < len(starts) {
			return starts[i]
		}
		return len(src)
	}

	seen := make(map[[2]int]bool)
	var blocks []block
	for _, cd := range cands {
		start := cd.loc[0]
		limit := nextStart(start)

		var b block
		var ok bool
		if lp.syntax.indentNested {
			b, ok = indentBlock(src, start, limit, lp.syntax)
		} else {
			b, ok = braceBlock(src, start, limit, lp.syntax)
			if ok && b.unbalanced {
				c.logger.Debug("unbalanced braces, using fixed window",
					zap.String("file", path), zap.String("block", cd.name))
			}
		}
		if !ok {
			continue
		}
		span := [2]int{b.start, b.end}
		if seen[span] {
			continue
		}
		seen[span] = true

		b.kind, b.name = cd.kind, cd.name
		blocks = append(blocks, b)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].start != blocks[j].start {
			return blocks[i].start < blocks[j].start
		}
		return blocks[i].end > blocks[j].end
	})
	return blocks
}

// braceBlock extracts a delimiter-nested block starting at start.
func braceBlock(src string, start, limit int, syn *syntax) (block, bool) {
	brace, term := bodyOpening(src, start, limit, syn)
	if brace >= 0 {
		end, ok := matchBrace(src, brace, syn)
		if !ok {
			end = min(len(src), start+unbalancedWindow)
			for end < len(src) && end > start && !utf8.RuneStart(src[end]) {
				end--
			}
		}
		return block{start: start, end: end, bodyStart: brace, unbalanced: !ok}, true
	}
	if term >= 0 && syn.arrowExpr && strings.Contains(src[start:term], "=>") {
		return block{start: start, end: term + 1, bodyStart: -1}, true
	}
	return block{}, false
}

// indentBlock extracts an indentation-nested block: everything after the
// header colon that is indented deeper than the declaration line.
func indentBlock(src string, start, limit int, syn *syntax) (block, bool) {
	colon := signatureColon(src, start, limit, syn)
	if colon < 0 {
		return block{}, false
	}
	lineEnd := lineEndAt(src, colon)
	b := block{start: start, end: lineEnd, bodyStart: colon}

	// "def f(): return 1" keeps its body on the header line
	rest := src[colon+1 : lineEnd]
	if i := strings.Index(rest, syn.lineComment); i >= 0 {
		rest = rest[:i]
	}
	if !isBlank(rest) {
		return b, true
	}

	base := indentWidth(src[start:lineEndAt(src, start)])
	for pos := lineEnd + 1; pos < len(src); {
		stop := lineEndAt(src, pos)
		line := src[pos:stop]
		if !isBlank(line) {
			if indentWidth(line) <= base {
				break
			}
			b.end = stop
		}
		pos = stop + 1
	}
	return b, true
}

// lineEndAt returns the offset of the newline ending the line containing
// pos, or len(src).
func lineEndAt(src string, pos int) int {
	if i := strings.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(src)
}

// indentWidth counts leading whitespace, a tab counting as four columns.
func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}

// emitBlock emits a block whole, or sub-splits it when over budget.
func (c *Code) emitBlock(e *emitter, src string, b block) {
	attrs := []attr{{types.MetaBlockType, b.kind}, {types.MetaBlockName, b.name}}
	content := src[b.start:b.end]
	if c.tokens(strings.TrimSpace(content)) <= c.maxTokens {
		e.emit(content, attrs...)
		return
	}

	sigEnd := lineEndAt(src, b.start)
	if b.bodyStart >= 0 {
		sigEnd = lineEndAt(src, b.bodyStart)
	}
	sigEnd = min(sigEnd, b.end)
	c.subSplit(e, src[b.start:sigEnd], strings.TrimPrefix(src[sigEnd:b.end], "\n"), attrs)
}

// emitText emits non-block source text, line-chunking it if too large.
func (c *Code) emitText(e *emitter, text string, attrs ...attr) {
	if isBlank(text) {
		return
	}
	if c.tokens(strings.TrimSpace(text)) <= c.maxTokens {
		e.emit(text, attrs...)
		return
	}
	c.lineChunks(e, text, attrs...)
}

// subSplit breaks an oversized block into continuation chunks. Every chunk
// starts with the signature; every chunk after the first repeats the last
// overlapLines lines of the one before it.
func (c *Code) subSplit(e *emitter, sig, body string, attrs []attr) {
	sig = strings.TrimRight(sig, " \t\r\n")
	attrs = append(attrs, flag(types.MetaIsSubChunk))
	if c.tokens(sig) >= c.maxTokens {
		c.lineChunks(e, sig+"\n"+body, attrs...)
		return
	}

	compose := func(parts ...[]string) string {
		var sb strings.Builder
		sb.WriteString(sig)
		for _, part := range parts {
			for _, line := range part {
				sb.WriteByte('\n')
				sb.WriteString(line)
			}
		}
		return sb.String()
	}
	fits := func(parts ...[]string) bool {
		return c.tokens(strings.TrimSpace(compose(parts...))) <= c.maxTokens
	}

	var overlap, cur []string
	flush := func() {
		if len(cur) == 0 {
			return
		}
		e.emit(compose(overlap, cur), attrs...)
		overlap = tailLines(append(append([]string(nil), overlap...), cur...), c.overlapLines)
		cur = nil
	}

	for _, line := range strings.Split(strings.TrimRight(body, " \t\r\n"), "\n") {
		if fits(overlap, cur, []string{line}) {
			cur = append(cur, line)
			continue
		}
		flush()

		for len(overlap) > 0 && !fits(overlap, []string{line}) {
			overlap = overlap[1:]
		}
		if fits(overlap, []string{line}) {
			cur = []string{line}
			continue
		}

		room := max(1, c.maxTokens-c.tokens(sig)-2)
		forced := append(append([]attr(nil), attrs...), flag(types.MetaIsForceChunked))
		for _, piece := range c.text.WithLimits(room, 0).Split(line) {
			e.emit(sig+"\n"+piece.Text, forced...)
		}
		overlap = nil
	}
	flush()
}

// lineChunks accumulates whole lines up to the budget, starting each new
// chunk with the last overlapLines lines of the previous one.
func (c *Code) lineChunks(e *emitter, text string, attrs ...attr) {
	fits := func(lines []string) bool {
		return c.tokens(strings.TrimSpace(strings.Join(lines, "\n"))) <= c.maxTokens
	}

	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if fits(append(cur, line)) {
			cur = append(cur, line)
			continue
		}
		if len(cur) > 0 {
			e.emit(strings.Join(cur, "\n"), attrs...)
			cur = tailLines(cur, c.overlapLines)
			for len(cur) > 0 && !fits(append(cur, line)) {
				cur = cur[1:]
			}
			if fits(append(cur, line)) {
				cur = append(cur, line)
				continue
			}
		}

		forced := append(append([]attr(nil), attrs...), flag(types.MetaIsForceChunked))
		for _, piece := range c.text.Split(line) {
			e.emit(piece.Text, forced...)
		}
		cur = nil
	}
	if len(cur) > 0 {
		e.emit(strings.Join(cur, "\n"), attrs...)
	}
}

// tailLines returns a copy of the last n lines, ignoring trailing blank
// lines so the overlap matches what the previous chunk ended with.
func tailLines(lines []string, n int) []string {
	end := len(lines)
	for end > 0 && isBlank(lines[end-1]) {
		end--
	}
	if n <= 0 || end == 0 {
		return nil
	}
	start := max(0, end-n)
	out := append([]string(nil), lines[start:end]...)
	out[len(out)-1] = strings.TrimRight(out[len(out)-1], " \t\r")
	return out
}

func (c *Code) tokens(s string) int {
	return c.tok.EstimateTokenCount(s)
}
