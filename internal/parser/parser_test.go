package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depscan/internal/models"
	"depscan/internal/parser/rust"
)

func TestRustParser(t *testing.T) {
	code := []byte(`//! Binary entry point.
use std::collections::{HashMap, HashSet};
use serde::{Deserialize, Serialize};
pub use crate::config::Settings as Config;

extern crate log;
mod cli;

fn main() {
    let mut seen: HashSet<&str> = HashSet::new();
    seen.insert("a");
}
`)

	parser := NewRustParser()
	result, err := parser.ExtractDependencies("src/main.rs", code)
	require.NoError(t, err)

	assert.Equal(t, "src/main.rs", result.Path)
	assert.Equal(t, "rust", result.Language)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Dependencies, 7)

	var got []string
	for _, dep := range result.Dependencies {
		got = append(got, dep.Path())
	}
	assert.Equal(t, []string{
		"std::collections::HashMap",
		"std::collections::HashSet",
		"serde::Deserialize",
		"serde::Serialize",
		"crate::config::Settings",
		"log",
		"cli",
	}, got)

	cfg := result.Dependencies[4]
	assert.Equal(t, models.VisibilityPublic, cfg.Visibility)
	assert.Equal(t, "Config", cfg.Alias)
	assert.Equal(t, models.KindExternCrate, result.Dependencies[5].Kind)
	assert.Equal(t, models.KindMod, result.Dependencies[6].Kind)
}

func TestRustParserFatalError(t *testing.T) {
	parser := NewRustParser()
	_, err := parser.ExtractDependencies("lib.rs", []byte("use a;\n/* open"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rust.ErrUnterminatedComment))
	assert.Contains(t, err.Error(), "lib.rs")
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		filePath string
		expected Language
	}{
		{"main.rs", LanguageRust},
		{"src/LIB.RS", LanguageRust},
		{"build.go", ""},
		{"Cargo.toml", ""},
		{"unknown.txt", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectLanguage(tt.filePath), tt.filePath)
	}
	assert.True(t, IsSupportedFile("a/b/mod.rs"))
	assert.Equal(t, []string{".rs"}, SupportedExtensions())
}

func TestParserFactory(t *testing.T) {
	factory := NewParserFactory()

	parser, err := factory.GetParser(LanguageRust)
	require.NoError(t, err)
	assert.Equal(t, string(LanguageRust), parser.Language())

	parser, err = factory.GetParserByFilePath("src/lib.rs")
	require.NoError(t, err)
	assert.Equal(t, string(LanguageRust), parser.Language())

	_, err = factory.GetParser("unsupported")
	assert.Error(t, err)

	_, err = factory.GetParserByFilePath("main.py")
	assert.Error(t, err)
}
