package rust

import (
	"depscan/internal/models"
	"errors"
	"fmt"
)

// parseError rejects one statement. It becomes a warning, never a file error.
type parseError struct {
	reason models.ReasonKind
	detail string
}

func (e *parseError) Error() string {
	return fmt.Sprintf("%s: %s", e.reason, e.detail)
}

var (
	errEmptyPath       = &parseError{reason: models.ReasonUnrecognizedShape, detail: "import names no path"}
	errMisplacedMarker = &parseError{reason: models.ReasonUnrecognizedShape, detail: "self, super or crate out of place"}
)

// inlineBody is the text between the braces of "mod name { ... }".
type inlineBody struct {
	text   string
	offset int
}

type parser struct {
	src  string
	toks []token
	pos  int
}

// parseStatement classifies one segmented statement. On success exactly one
// of decl.tree and body is set.
func parseStatement(text string) (declaration, *inlineBody, error) {
	p := &parser{src: text, toks: lex(text)}
	return p.statement()
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) error {
	return &parseError{reason: models.ReasonUnrecognizedShape, detail: "unexpected " + t.String()}
}

func (p *parser) expectEnd() error {
	if t := p.peek(); t.kind != tokEOF {
		return p.unexpected(t)
	}
	return nil
}

func (p *parser) statement() (declaration, *inlineBody, error) {
	if err := p.attributes(); err != nil {
		return declaration{}, nil, err
	}

	decl := declaration{visibility: models.VisibilityPrivate}
	if p.peek().kind == tokPub {
		p.next()
		decl.visibility = models.VisibilityPublic
		if p.peek().kind == tokLParen {
			if _, err := p.skipBalanced(tokLParen, tokRParen); err != nil {
				return declaration{}, nil, err
			}
		}
	}

	switch t := p.next(); t.kind {
	case tokExtern:
		decl.kind = models.KindExternCrate
		tree, err := p.externCrate()
		decl.tree = tree
		return decl, nil, err
	case tokMod:
		decl.kind = models.KindMod
		tree, body, err := p.module()
		decl.tree = tree
		return decl, body, err
	case tokUse:
		decl.kind = models.KindUse
		tree, err := p.useTree()
		if err != nil {
			return declaration{}, nil, err
		}
		decl.tree = tree
		return decl, nil, p.expectEnd()
	default:
		return declaration{}, nil, p.unexpected(t)
	}
}

// attributes skips leading #[...] and #![...] attributes.
func (p *parser) attributes() error {
	for p.peek().kind == tokHash {
		p.next()
		if p.peek().kind == tokBang {
			p.next()
		}
		if p.peek().kind != tokLBracket {
			return p.unexpected(p.peek())
		}
		if _, err := p.skipBalanced(tokLBracket, tokRBracket); err != nil {
			return err
		}
	}
	return nil
}

// skipBalanced consumes a bracketed run starting at the current opener and
// returns the closing token.
func (p *parser) skipBalanced(opener, closer tokenKind) (token, error) {
	depth := 0
	for {
		t := p.next()
		switch t.kind {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return t, nil
			}
		case tokEOF:
			return t, &parseError{reason: models.ReasonUnbalancedGrouping, detail: "unclosed bracket"}
		}
	}
}

// externCrate parses the rest of "extern crate name [as alias]". The crate
// keyword is optional.
func (p *parser) externCrate() (useTree, error) {
	sawCrate := false
	if p.peek().kind == tokCrate {
		p.next()
		sawCrate = true
	}

	var name string
	switch t := p.next(); {
	case t.kind == tokIdent:
		name = t.text
	case t.kind == tokSelf && sawCrate:
		name = "self"
	default:
		return nil, p.unexpected(t)
	}

	alias, hasAlias, err := p.alias()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return useLeaf{path: []string{name}, alias: alias, hasAlias: hasAlias}, nil
}

// module parses "mod path" or "mod name { body }". Module names must be plain
// identifiers.
func (p *parser) module() (useTree, *inlineBody, error) {
	var path []string
	for {
		t := p.next()
		if t.kind != tokIdent {
			return nil, nil, p.unexpected(t)
		}
		path = append(path, t.text)
		if p.peek().kind != tokPathSep {
			break
		}
		p.next()
	}

	if open := p.peek(); open.kind == tokLBrace {
		if len(path) > 1 {
			return nil, nil, p.unexpected(open)
		}
		// The segmenter ends item statements at the brace that closes the
		// body, and it skips literals that the token stream does not.
		closing := p.toks[len(p.toks)-2]
		if closing.kind != tokRBrace {
			return nil, nil, &parseError{reason: models.ReasonUnbalancedGrouping, detail: "unclosed module body"}
		}
		start := open.pos + 1
		return nil, &inlineBody{text: p.src[start:closing.pos], offset: start}, nil
	}

	if err := p.expectEnd(); err != nil {
		return nil, nil, err
	}
	return useLeaf{path: path}, nil, nil
}

// useTree parses one use tree:
//
//	tree  = ["::"] (segment "::")* (segment ["as" name] | "*" | "{" [list] "}")
//	list  = tree ("," tree)* [","]
func (p *parser) useTree() (useTree, error) {
	var path []string
	if p.peek().kind == tokPathSep {
		p.next()
	}

	for {
		switch t := p.peek(); t.kind {
		case tokStar:
			p.next()
			return useGlob{prefix: path}, nil
		case tokLBrace:
			p.next()
			entries, err := p.useList()
			if err != nil {
				return nil, err
			}
			return useGroup{prefix: path, entries: entries}, nil
		case tokIdent, tokSelf, tokCrate, tokSuper:
			p.next()
			path = append(path, t.text)
			if p.peek().kind == tokPathSep {
				p.next()
				continue
			}
			alias, hasAlias, err := p.alias()
			if err != nil {
				return nil, err
			}
			return useLeaf{path: path, alias: alias, hasAlias: hasAlias}, nil
		default:
			return nil, p.unexpected(t)
		}
	}
}

// useList parses group entries up to and including the closing brace.
func (p *parser) useList() ([]useTree, error) {
	var entries []useTree
	for {
		if p.peek().kind == tokRBrace {
			p.next()
			return entries, nil
		}

		entry, err := p.useTree()
		if err != nil {
			var perr *parseError
			if errors.As(err, &perr) && perr.reason == models.ReasonUnrecognizedShape && p.peek().kind == tokEOF {
				return nil, &parseError{reason: models.ReasonUnbalancedGrouping, detail: "unclosed group"}
			}
			return nil, err
		}
		entries = append(entries, entry)

		switch t := p.next(); t.kind {
		case tokComma:
		case tokRBrace:
			return entries, nil
		case tokEOF:
			return nil, &parseError{reason: models.ReasonUnbalancedGrouping, detail: "unclosed group"}
		default:
			return nil, p.unexpected(t)
		}
	}
}

// alias parses an optional "as name" suffix. "_" is a valid name.
func (p *parser) alias() (string, bool, error) {
	if p.peek().kind != tokAs {
		return "", false, nil
	}
	p.next()
	t := p.peek()
	if t.kind != tokIdent {
		return "", false, &parseError{reason: models.ReasonAmbiguousAlias, detail: "as followed by " + t.String()}
	}
	p.next()
	return t.text, true, nil
}
