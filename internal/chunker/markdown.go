package chunker

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)(?:[ \t]+#+)?[ \t]*$`)
	fencePattern   = regexp.MustCompile("^ {0,3}(```|~~~)")
	paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)
)

// heading is a parsed ATX heading line.
type heading struct {
	level int
	title string
	line  string
}

// mdSection is a run of heading lines followed by body text. Consecutive
// headings with nothing between them share one section.
type mdSection struct {
	headings []heading
	body     string
}

// headingContext is the H1 > H2 > H3 chain in effect at a point in the
// document. Levels 4-6 never change it.
type headingContext struct {
	h1, h2, h3 string
}

func (hc *headingContext) apply(h heading) {
	switch h.level {
	case 1:
		hc.h1, hc.h2, hc.h3 = h.title, "", ""
	case 2:
		hc.h2, hc.h3 = h.title, ""
	case 3:
		hc.h3 = h.title
	}
}

// line renders the chain as "# A > ## B > ### C", skipping empty levels.
func (hc headingContext) line() string {
	parts := make([]string, 0, 3)
	if hc.h1 != "" {
		parts = append(parts, "# "+hc.h1)
	}
	if hc.h2 != "" {
		parts = append(parts, "## "+hc.h2)
	}
	if hc.h3 != "" {
		parts = append(parts, "### "+hc.h3)
	}
	return strings.Join(parts, " > ")
}

func (hc headingContext) attrs() []attr {
	return []attr{
		{types.MetaH1Context, hc.h1},
		{types.MetaH2Context, hc.h2},
		{types.MetaH3Context, hc.h3},
	}
}

// Markdown chunks markdown by heading sections, prefixing each chunk with
// the ancestor heading chain.
type Markdown struct {
	tok       tokenizer.Tokenizer
	logger    *zap.Logger
	maxTokens int
	text      *PlainText
}

// NewMarkdown returns a markdown chunker using the markdown budget.
func NewMarkdown(tok tokenizer.Tokenizer, limits Limits, logger *zap.Logger) *Markdown {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Markdown{
		tok:       tok,
		logger:    logger,
		maxTokens: limits.MaxMarkdownTokens,
		text:      NewPlainText(tok, limits.MaxMarkdownTokens, limits.MarkdownOverlapTokens, logger),
	}
}

// Chunk implements Strategy.
func (m *Markdown) Chunk(req Request) ([]*types.Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := newEmitter(req, m.tok)
	if isBlank(req.Content) {
		m.logger.Debug("empty markdown, nothing to chunk", zap.String("file", req.FilePath))
		return e.chunks, nil
	}

	sections, found := splitSections(req.Content)

	if m.tokens(strings.TrimSpace(req.Content)) <= m.maxTokens {
		m.emitWhole(e, req.Content, sections, found)
		return e.chunks, nil
	}

	if !found {
		m.logger.Info("no headings found, falling back to plain text", zap.String("file", req.FilePath))
		return m.text.Chunk(req)
	}

	var hc headingContext
	for _, sec := range sections {
		for _, h := range sec.headings {
			hc.apply(h)
		}
		header := unfoldedHeadings(sec.headings)
		body := joinBlocks(header, sec.body)
		if isBlank(body) && hc.line() == "" {
			continue
		}

		withContext := joinBlocks(hc.line(), body)
		if m.tokens(strings.TrimSpace(withContext)) <= m.maxTokens {
			e.emit(withContext, hc.attrs()...)
			continue
		}
		m.splitSection(e, hc, header, sec.body)
	}
	return e.chunks, nil
}

// emitWhole emits a document that fits the budget as a single chunk. When
// it opens with headings and has no others, those become the context line.
// Otherwise the content is kept as written and the metadata carries the
// heading chain in effect at the end of the document.
func (m *Markdown) emitWhole(e *emitter, content string, sections []mdSection, found bool) {
	if !found {
		e.emit(content)
		return
	}

	var hc headingContext
	for _, sec := range sections {
		for _, h := range sec.headings {
			hc.apply(h)
		}
	}
	if len(sections) > 1 {
		e.emit(content, hc.attrs()...)
		return
	}

	lead := sections[0]
	body := joinBlocks(unfoldedHeadings(lead.headings), skipLeadingHeadings(content))
	if ctx := hc.line(); ctx != "" {
		if withContext := joinBlocks(ctx, body); m.tokens(withContext) <= m.maxTokens {
			e.emit(withContext, hc.attrs()...)
			return
		}
	}
	e.emit(content, hc.attrs()...)
}

// splitSection breaks an oversized section into paragraph groups, repeating
// the context line and any unfolded heading lines on every sub-chunk.
func (m *Markdown) splitSection(e *emitter, hc headingContext, header, body string) {
	prefix := joinBlocks(hc.line(), header)
	if m.tokens(prefix) > m.maxTokens/2 {
		prefix = header
	}
	if m.tokens(prefix) > m.maxTokens/2 {
		prefix = ""
	}

	attrs := append(hc.attrs(), flag(types.MetaIsSubChunk))
	emitGroup := func(paras []string) {
		if len(paras) == 0 {
			return
		}
		e.emit(joinBlocks(prefix, strings.Join(paras, "\n\n")), attrs...)
	}

	var group []string
	for _, para := range paragraphBreak.Split(body, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		candidate := append(append([]string(nil), group...), para)
		if m.tokens(joinBlocks(prefix, strings.Join(candidate, "\n\n"))) <= m.maxTokens {
			group = candidate
			continue
		}
		emitGroup(group)
		group = nil

		if m.tokens(joinBlocks(prefix, para)) <= m.maxTokens {
			group = []string{para}
			continue
		}

		// A single paragraph too large for the budget: pre-split it so each
		// piece still fits alongside the prefix.
		room := m.maxTokens - m.tokens(prefix) - 2
		if room < 1 {
			room = 1
		}
		for _, piece := range m.text.WithLimits(room, 0).Split(para) {
			pieceAttrs := attrs
			if piece.Forced {
				pieceAttrs = append(append([]attr(nil), attrs...), flag(types.MetaIsForceChunked))
			}
			e.emit(joinBlocks(prefix, strings.TrimSpace(piece.Text)), pieceAttrs...)
		}
	}
	emitGroup(group)
}

func (m *Markdown) tokens(s string) int {
	return m.tok.EstimateTokenCount(s)
}

// splitSections scans lines, ignoring fenced code blocks, and groups them
// into sections that start at heading lines. found reports whether any
// heading exists.
func splitSections(content string) (sections []mdSection, found bool) {
	var (
		cur     mdSection
		body    strings.Builder
		inFence bool
		fence   string
	)
	flush := func() {
		cur.body = body.String()
		if len(cur.headings) > 0 || !isBlank(cur.body) {
			sections = append(sections, cur)
		}
		cur = mdSection{}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimRight(line, "\r")

		if fm := fencePattern.FindStringSubmatch(trimmed); fm != nil {
			switch {
			case !inFence:
				inFence, fence = true, fm[1]
			case fm[1] == fence:
				inFence = false
			}
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}

		if !inFence {
			if h, ok := parseHeading(trimmed); ok {
				found = true
				if !isBlank(body.String()) {
					flush()
				}
				body.Reset()
				cur.headings = append(cur.headings, h)
				continue
			}
		}

		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections, found
}

func parseHeading(line string) (heading, bool) {
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return heading{}, false
	}
	title := strings.TrimSpace(m[2])
	if title == "" {
		return heading{}, false
	}
	return heading{level: len(m[1]), title: title, line: strings.TrimSpace(line)}, true
}

// skipLeadingHeadings drops the blank and heading lines that open a document.
func skipLeadingHeadings(content string) string {
	rest := content
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		if !isBlank(line) {
			if _, ok := parseHeading(strings.TrimRight(line, "\r")); !ok {
				break
			}
		}
		rest = tail
	}
	return rest
}

// unfoldedHeadings returns the heading lines of a run that the context line
// does not already represent: levels 4-6, and level 1-3 headings superseded
// by a later heading of the same or higher rank within the run.
func unfoldedHeadings(run []heading) string {
	var lines []string
	for i, h := range run {
		if h.level <= 3 && !supersededInRun(run[i+1:], h.level) {
			continue
		}
		lines = append(lines, h.line)
	}
	return strings.Join(lines, "\n")
}

func supersededInRun(rest []heading, level int) bool {
	for _, h := range rest {
		if h.level <= level {
			return true
		}
	}
	return false
}

// joinBlocks joins non-blank parts with a blank line.
func joinBlocks(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
