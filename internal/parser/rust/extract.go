// Package rust extracts dependency declarations (use, extern crate and mod
// statements) from Rust source text without parsing the full language.
package rust

import (
	"depscan/internal/models"
	"errors"
	"strings"
)

// Extract returns the dependencies declared in src in source order, together
// with warnings for statements that looked like imports but could not be
// read. The error is non-nil only for fatal conditions, in which case no
// records are returned.
func Extract(src string) ([]models.Dependency, []models.Warning, error) {
	stripped, cuts, err := stripComments(src)
	if err != nil {
		return nil, nil, err
	}
	x := &extractor{orig: src, cuts: cuts}
	return x.extract(stripped, 1, 0)
}

// extractor carries the original text and line comment positions of one file
// so inline module bodies are segmented like the rest of it.
type extractor struct {
	orig string
	cuts []int
}

func (x *extractor) extract(text string, firstLine, base int) ([]models.Dependency, []models.Warning, error) {
	var (
		deps     []models.Dependency
		warnings []models.Warning
	)

	seg := &Segmenter{src: text, line: firstLine, base: base, cuts: x.cuts, orig: x.orig}
	for {
		stmt, ok, err := seg.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}

		d, w, err := x.statement(stmt)
		if err != nil {
			return nil, nil, err
		}
		deps = append(deps, d...)
		warnings = append(warnings, w...)
	}

	return deps, warnings, nil
}

func (x *extractor) statement(stmt Statement) ([]models.Dependency, []models.Warning, error) {
	if stmt.Unbalanced {
		return nil, []models.Warning{newWarning(stmt, models.ReasonUnbalancedGrouping)}, nil
	}

	decl, body, err := parseStatement(stmt.Text)
	if err != nil {
		return nil, []models.Warning{warningFor(stmt, err)}, nil
	}

	if body != nil {
		line := stmt.Line + strings.Count(stmt.Text[:body.offset], "\n")
		return x.extract(body.text, line, stmt.offset+body.offset)
	}

	base := models.Dependency{
		Kind:       decl.kind,
		Visibility: decl.visibility,
		Line:       stmt.Line,
	}
	deps, err := flatten(decl.tree, nil, base)
	if err != nil {
		return nil, []models.Warning{warningFor(stmt, err)}, nil
	}
	return deps, nil, nil
}

func warningFor(stmt Statement, err error) models.Warning {
	var perr *parseError
	if errors.As(err, &perr) {
		return newWarning(stmt, perr.reason)
	}
	return newWarning(stmt, models.ReasonUnrecognizedShape)
}

func newWarning(stmt Statement, reason models.ReasonKind) models.Warning {
	return models.Warning{Statement: stmt.Text, Reason: reason, Line: stmt.Line}
}
