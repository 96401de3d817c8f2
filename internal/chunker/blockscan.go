package chunker

import (
	"strings"
	"unicode/utf8"
)

// scanState is the lexical state of the block scanner.
type scanState int

const (
	stateNormal scanState = iota
	stateLineComment
	stateBlockComment
	stateString
)

func (s scanState) String() string {
	switch s {
	case stateNormal:
		return "NORMAL"
	case stateLineComment:
		return "IN_LINE_COMMENT"
	case stateBlockComment:
		return "IN_BLOCK_COMMENT"
	case stateString:
		return "IN_STRING"
	default:
		return "UNKNOWN"
	}
}

// syntax describes the lexical features the scanner must skip over.
type syntax struct {
	lineComment  string
	blockOpen    string
	blockClose   string
	quotes       string // characters that open a string literal
	shortChars   bool   // ' delimits a one-character literal, not a string
	arrowExpr    bool   // "=> expr;" bodies
	indentNested bool   // blocks are delimited by indentation
}

var (
	cSyntax      = syntax{lineComment: "//", blockOpen: "/*", blockClose: "*/", quotes: `"'`, shortChars: true}
	csSyntax     = syntax{lineComment: "//", blockOpen: "/*", blockClose: "*/", quotes: `"'`, shortChars: true, arrowExpr: true}
	jsSyntax     = syntax{lineComment: "//", blockOpen: "/*", blockClose: "*/", quotes: "\"'`", arrowExpr: true}
	goSyntax     = syntax{lineComment: "//", blockOpen: "/*", blockClose: "*/", quotes: "\"'`", shortChars: true}
	pythonSyntax = syntax{lineComment: "#", quotes: `"'`, indentNested: true}
)

// scanner walks source text one step at a time, tracking whether the
// current position is code, comment or string literal.
type scanner struct {
	src   string
	syn   *syntax
	pos   int
	state scanState
	quote byte
}

func newScanner(src string, syn *syntax, pos int) *scanner {
	return &scanner{src: src, syn: syn, pos: pos}
}

func (s *scanner) done() bool {
	return s.pos >= len(s.src)
}

// next consumes one step. It returns the consumed byte and true when that
// byte is code; comment and literal bytes return false.
func (s *scanner) next() (byte, bool) {
	i := s.pos
	c := s.src[i]

	switch s.state {
	case stateLineComment:
		s.pos++
		if c == '\n' {
			s.state = stateNormal
			return c, true
		}
		return 0, false

	case stateBlockComment:
		if strings.HasPrefix(s.src[i:], s.syn.blockClose) {
			s.state = stateNormal
			s.pos += len(s.syn.blockClose)
			return 0, false
		}
		s.pos++
		return 0, false

	case stateString:
		switch {
		case c == '\\' && s.quote != '`':
			s.pos += 2
		case c == s.quote:
			s.state = stateNormal
			s.pos++
		case c == '\n' && s.quote != '`':
			// unterminated literal; resume at the next line
			s.state = stateNormal
			s.pos++
			return c, true
		default:
			s.pos++
		}
		return 0, false
	}

	if s.syn.lineComment != "" && strings.HasPrefix(s.src[i:], s.syn.lineComment) {
		s.state = stateLineComment
		s.pos += len(s.syn.lineComment)
		return 0, false
	}
	if s.syn.blockOpen != "" && strings.HasPrefix(s.src[i:], s.syn.blockOpen) {
		s.state = stateBlockComment
		s.pos += len(s.syn.blockOpen)
		return 0, false
	}
	if strings.IndexByte(s.syn.quotes, c) >= 0 {
		if c == '\'' && s.syn.shortChars && !charLiteralAt(s.src, i) {
			// lifetime or apostrophe, not a literal
			s.pos++
			return c, true
		}
		s.state = stateString
		s.quote = c
		s.pos++
		return 0, false
	}
	s.pos++
	return c, true
}

// charLiteralAt reports whether a short character literal such as 'x',
// '\n' or 'é' starts at i.
func charLiteralAt(src string, i int) bool {
	j := i + 1
	if j >= len(src) {
		return false
	}
	if src[j] == '\\' {
		limit := min(len(src), j+10)
		for k := j + 2; k < limit; k++ {
			if src[k] == '\'' {
				return true
			}
			if src[k] == '\n' {
				return false
			}
		}
		return false
	}
	_, size := utf8.DecodeRuneInString(src[j:])
	return j+size < len(src) && src[j+size] == '\''
}

// matchBrace returns the offset just past the brace that closes the one at
// open. ok is false when the braces never balance.
func matchBrace(src string, open int, syn *syntax) (end int, ok bool) {
	s := newScanner(src, syn, open)
	depth := 0
	for !s.done() {
		c, code := s.next()
		if !code {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s.pos, true
			}
		}
	}
	return -1, false
}

// bodyOpening locates where a declaration's body begins, scanning from
// `from` up to `limit`. It returns the offset of the opening brace, or the
// offset of a statement terminator when one comes first (brace is -1 then).
// Both are -1 when a blank line or the limit is reached first.
func bodyOpening(src string, from, limit int, syn *syntax) (brace, term int) {
	s := newScanner(src[:limit], syn, from)
	depth := 0
	newline := false
	for !s.done() {
		at := s.pos
		c, code := s.next()
		if !code {
			newline = false
			continue
		}
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '{':
			if depth == 0 {
				return at, -1
			}
		case ';':
			if depth == 0 {
				return -1, at
			}
		case '\n':
			if newline && depth == 0 {
				return -1, -1
			}
			newline = true
			continue
		}
		if c != ' ' && c != '\t' && c != '\r' {
			newline = false
		}
	}
	return -1, -1
}

// signatureColon finds the ':' that ends an indentation-nested
// declaration header, skipping brackets and literals.
func signatureColon(src string, from, limit int, syn *syntax) int {
	s := newScanner(src[:limit], syn, from)
	depth := 0
	for !s.done() {
		at := s.pos
		c, code := s.next()
		if !code {
			continue
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				return at
			}
		}
	}
	return -1
}
