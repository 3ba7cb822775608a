package rust

import (
	"fmt"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokPathSep
	tokComma
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokStar
	tokSemi
	tokHash
	tokBang
	tokAs
	tokPub
	tokUse
	tokMod
	tokExtern
	tokSelf
	tokCrate
	tokSuper
	tokOther
)

var keywords = map[string]tokenKind{
	"as":     tokAs,
	"pub":    tokPub,
	"use":    tokUse,
	"mod":    tokMod,
	"extern": tokExtern,
	"self":   tokSelf,
	"crate":  tokCrate,
	"super":  tokSuper,
}

var punctuation = map[byte]tokenKind{
	',': tokComma,
	'{': tokLBrace,
	'}': tokRBrace,
	'(': tokLParen,
	')': tokRParen,
	'[': tokLBracket,
	']': tokRBracket,
	'*': tokStar,
	';': tokSemi,
	'#': tokHash,
	'!': tokBang,
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of statement"
	}
	return fmt.Sprintf("%q", t.text)
}

// lex splits one statement into tokens. It never fails: bytes outside the
// import grammar become tokOther and are rejected by the parser.
func lex(src string) []token {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case isSpace(c):
			i++
		case c == ':' && i+1 < len(src) && src[i+1] == ':':
			toks = append(toks, token{kind: tokPathSep, text: "::", pos: i})
			i += 2
		case c == 'r' && i+2 < len(src) && src[i+1] == '#' && isIdentStart(src[i+2]):
			// Raw identifiers name the path segment without the r# prefix.
			j := i + 2
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i+2 : j], pos: i})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			word := src[i:j]
			kind, ok := keywords[word]
			if !ok {
				kind = tokIdent
			}
			toks = append(toks, token{kind: kind, text: word, pos: i})
			i = j
		default:
			kind, ok := punctuation[c]
			if !ok {
				kind = tokOther
			}
			toks = append(toks, token{kind: kind, text: src[i : i+1], pos: i})
			i++
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)})
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= utf8.RuneSelf
}
