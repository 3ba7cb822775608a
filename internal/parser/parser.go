package parser

import (
	"depscan/internal/models"
	"depscan/internal/parser/rust"
	"fmt"
)

// RustParser implements DependencyParser for Rust sources.
type RustParser struct{}

// NewRustParser creates a new Rust parser
func NewRustParser() *RustParser {
	return &RustParser{}
}

// Language returns the language name
func (p *RustParser) Language() string {
	return string(LanguageRust)
}

// ExtractDependencies extracts use, extern crate and mod declarations.
func (p *RustParser) ExtractDependencies(filePath string, code []byte) (*models.FileDependencies, error) {
	deps, warnings, err := rust.Extract(string(code))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Rust code in %s: %w", filePath, err)
	}

	return &models.FileDependencies{
		Path:         filePath,
		Language:     p.Language(),
		Dependencies: deps,
		Warnings:     warnings,
	}, nil
}
