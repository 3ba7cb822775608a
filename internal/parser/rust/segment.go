package rust

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Statement is one top-level candidate import statement. Text is trimmed and
// excludes the terminating semicolon.
type Statement struct {
	Text       string
	Line       int
	Unbalanced bool

	offset int
}

// Segmenter splits comment-stripped source into statements. It is a single
// pass over the input and cannot be restarted.
type Segmenter struct {
	src  string
	pos  int
	line int
	done bool

	// base is the offset of src in the file, cuts holds the file offsets
	// where blanked line comments start and orig is the file before
	// stripping.
	base int
	cuts []int
	orig string
}

// NewSegmenter returns a segmenter over already comment-stripped text whose
// first line is line 1. String literals run to their closing quote, so a
// literal whose closing quote was blanked together with a "//" inside it
// runs on to the next quote. Extract avoids this by passing the comment
// positions along.
func NewSegmenter(stripped string) *Segmenter {
	return &Segmenter{src: stripped, line: 1}
}

// Next returns the next import-shaped statement. ok is false once the input
// is exhausted or after a fatal error has been returned.
func (s *Segmenter) Next() (stmt Statement, ok bool, err error) {
	for !s.done {
		stmt, ok, err = s.scan()
		if err != nil || !ok {
			s.done = true
			return Statement{}, false, err
		}
		if isImportShaped(stmt.Text) {
			return stmt, true, nil
		}
	}
	return Statement{}, false, nil
}

// scan reads one raw statement regardless of its shape.
func (s *Segmenter) scan() (Statement, bool, error) {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.advance()
	}
	if s.pos >= len(s.src) {
		return Statement{}, false, nil
	}

	start, startLine := s.pos, s.line
	depth := 0
	unbalanced := false

	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case '"':
			s.skipString()
			continue
		case '\'':
			s.skipChar()
			continue
		case 'r', 'b', 'c':
			if hashes, n, ok := rawStringPrefix(s.src[s.pos:]); ok && !s.inIdent() {
				s.skipRawString(hashes, n)
				continue
			}
		case '{', '(', '[':
			depth++
		case ')', ']':
			if depth == 0 {
				unbalanced = true
			} else {
				depth--
			}
		case '}':
			if depth == 0 {
				unbalanced = true
				break
			}
			depth--
			if depth == 0 && leadingKeyword(s.src[start:s.pos]) != "use" {
				s.advance()
				return s.emit(start, s.pos, startLine, unbalanced), true, nil
			}
		case ';':
			if depth == 0 {
				stmt := s.emit(start, s.pos, startLine, unbalanced)
				s.advance()
				return stmt, true, nil
			}
		}
		s.advance()
	}

	if depth > 0 {
		return Statement{}, false, &SyntaxError{Err: ErrUnterminatedStatement, Line: startLine}
	}
	return s.emit(start, s.pos, startLine, unbalanced), true, nil
}

func (s *Segmenter) emit(start, end, line int, unbalanced bool) Statement {
	return Statement{
		Text:       strings.TrimSpace(s.src[start:end]),
		Line:       line,
		Unbalanced: unbalanced,
		offset:     s.base + start,
	}
}

func (s *Segmenter) advance() {
	if s.src[s.pos] == '\n' {
		s.line++
	}
	s.pos++
}

func (s *Segmenter) inIdent() bool {
	return s.pos > 0 && isIdentByte(s.src[s.pos-1])
}

// truncated reports whether a line comment was blanked between from and the
// current position. The closing quote of a literal holding "//" went with it.
func (s *Segmenter) truncated(from int) bool {
	i := sort.SearchInts(s.cuts, s.base+from+1)
	return i < len(s.cuts) && s.cuts[i] < s.base+s.pos
}

// restore puts back the rest of the current line when a "//" inside the
// literal at start had it blanked and the literal closes on this line in the
// original text. Scanning resumes after the literal either way: past its
// closing quote, or at the end of the line.
func (s *Segmenter) restore(start int, closeAt func(string) int) {
	if s.orig == "" {
		return
	}
	end := closeAt(s.orig[s.base+start : s.base+s.pos])
	if end < 0 {
		return
	}
	tail := []byte(s.orig[s.base+start+end : s.base+s.pos])
	blankLineComment(tail)
	s.src = s.src[:start+end] + string(tail) + s.src[s.pos:]
	s.pos = start + end
}

// skipString steps over a string literal so brackets inside it do not count.
// Literals may span lines.
func (s *Segmenter) skipString() {
	start := s.pos
	s.advance()
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.advance()
			if s.pos < len(s.src) {
				s.advance()
			}
			continue
		case '"':
			s.advance()
			return
		case '\n':
			if s.truncated(start) {
				s.restore(start, quotedLen)
				return
			}
		}
		s.advance()
	}
}

// skipRawString steps over r"...", br"..." or cr"..." with any number of
// hashes. The prefix is n bytes long.
func (s *Segmenter) skipRawString(hashes, n int) {
	start := s.pos
	s.pos += n
	closing := "\"" + strings.Repeat("#", hashes)
	for s.pos < len(s.src) {
		if strings.HasPrefix(s.src[s.pos:], closing) {
			s.pos += len(closing)
			return
		}
		if s.src[s.pos] == '\n' && s.truncated(start) {
			s.restore(start, func(line string) int {
				if i := strings.Index(line[n:], closing); i >= 0 {
					return n + i + len(closing)
				}
				return -1
			})
			return
		}
		s.advance()
	}
}

// skipChar steps over a character literal. A single quote not forming one is
// a lifetime and is skipped alone.
func (s *Segmenter) skipChar() {
	if n := charLiteralLen(s.src[s.pos:]); n > 0 {
		s.pos += n
		return
	}
	s.pos++
}

// rawStringPrefix matches the opening of a raw string literal and returns
// its hash count and prefix length.
func rawStringPrefix(src string) (hashes, n int, ok bool) {
	i := 0
	if i < len(src) && (src[i] == 'b' || src[i] == 'c') {
		i++
	}
	if i >= len(src) || src[i] != 'r' {
		return 0, 0, false
	}
	i++
	for i < len(src) && src[i] == '#' {
		hashes++
		i++
	}
	if i >= len(src) || src[i] != '"' {
		return 0, 0, false
	}
	return hashes, i + 1, true
}

// quotedLen returns the length of the string literal at the start of line,
// or -1 if it does not close on the line.
func quotedLen(line string) int {
	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return -1
}

// blankLineComment blanks comments in a line restored from the original
// text, the way the comment stripper would have.
func blankLineComment(line []byte) {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			n := quotedLen(string(line[i:]))
			if n < 0 {
				return
			}
			i += n - 1
		case '\'':
			if n := charLiteralLen(string(line[i:])); n > 0 {
				i += n - 1
			}
		case '/':
			if i+1 >= len(line) {
				return
			}
			switch line[i+1] {
			case '/':
				blank(line[i:])
				return
			case '*':
				end := strings.Index(string(line[i+2:]), "*/")
				if end < 0 {
					blank(line[i:])
					return
				}
				blank(line[i : i+2+end+2])
				i += 2 + end + 1
			}
		}
	}
}

func blank(b []byte) {
	for i := range b {
		b[i] = ' '
	}
}

// charLiteralLen returns the length of a character literal at the start of
// src, or 0 if src starts with a lifetime instead.
func charLiteralLen(src string) int {
	if len(src) >= 4 && src[1] == '\\' {
		if end := strings.IndexByte(src[3:], '\''); end >= 0 && end <= 10 {
			return end + 4
		}
		return 0
	}
	if len(src) < 3 || src[1] == '\n' {
		return 0
	}
	_, size := utf8.DecodeRuneInString(src[1:])
	if 1+size < len(src) && src[1+size] == '\'' {
		return size + 2
	}
	return 0
}

// itemKeywords follow "extern" in declarations that are not crate imports.
var itemKeywords = map[string]bool{
	"fn":     true,
	"unsafe": true,
	"safe":   true,
	"static": true,
	"type":   true,
	"struct": true,
	"enum":   true,
	"trait":  true,
	"impl":   true,
	"const":  true,
	"mod":    true,
	"use":    true,
}

// isImportShaped reports whether text starts with a keyword chain that can
// declare a dependency.
func isImportShaped(text string) bool {
	switch leadingKeyword(text) {
	case "use", "mod":
		return true
	case "extern":
		rest := afterLeadingKeyword(text)
		word, _ := nextWord(rest)
		return word != "" && !itemKeywords[word]
	default:
		return false
	}
}

// leadingKeyword returns the first word of text after attributes and an
// optional visibility marker.
func leadingKeyword(text string) string {
	word, _ := nextWord(skipVisibility(skipAttributes(text)))
	return word
}

func afterLeadingKeyword(text string) string {
	_, rest := nextWord(skipVisibility(skipAttributes(text)))
	return rest
}

// skipAttributes drops leading #[...] and #![...] attributes.
func skipAttributes(text string) string {
	for {
		text = strings.TrimLeft(text, " \t\r\n")
		var body string
		switch {
		case strings.HasPrefix(text, "#["):
			body = text[1:]
		case strings.HasPrefix(text, "#!["):
			body = text[2:]
		default:
			return text
		}
		end := matchingClose(body, '[', ']')
		if end < 0 {
			return text
		}
		text = body[end+1:]
	}
}

// skipVisibility drops a leading pub or pub(...) marker.
func skipVisibility(text string) string {
	word, rest := nextWord(text)
	if word != "pub" {
		return text
	}
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	if strings.HasPrefix(trimmed, "(") {
		end := matchingClose(trimmed, '(', ')')
		if end < 0 {
			return trimmed
		}
		return trimmed[end+1:]
	}
	return rest
}

// matchingClose returns the index of the bracket closing the one at s[0].
func matchingClose(s string, opener, closer byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// nextWord returns the identifier at the start of text (after whitespace) and
// the remainder.
func nextWord(text string) (string, string) {
	text = strings.TrimLeft(text, " \t\r\n")
	i := 0
	for i < len(text) && isIdentByte(text[i]) {
		i++
	}
	return text[:i], text[i:]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v'
}

// isIdentByte accepts any non-ASCII byte so that Unicode identifiers stay
// whole.
func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= utf8.RuneSelf
}
