package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParserFactory creates language-specific parsers
type ParserFactory struct {
	parsers map[Language]DependencyParser
}

// NewParserFactory creates a new parser factory with all supported languages
func NewParserFactory() *ParserFactory {
	return &ParserFactory{
		parsers: map[Language]DependencyParser{
			LanguageRust: NewRustParser(),
		},
	}
}

// Register adds or replaces the parser for a language.
func (f *ParserFactory) Register(lang Language, p DependencyParser) {
	f.parsers[lang] = p
}

// GetParser returns a parser for the given language
func (f *ParserFactory) GetParser(lang Language) (DependencyParser, error) {
	parser, exists := f.parsers[lang]
	if !exists {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return parser, nil
}

// GetParserByFilePath returns a parser based on file extension
func (f *ParserFactory) GetParserByFilePath(filePath string) (DependencyParser, error) {
	lang := DetectLanguage(filePath)
	if lang == "" {
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}
	return f.GetParser(lang)
}

// DetectLanguage detects the programming language based on file extension
func DetectLanguage(filePath string) Language {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".rs":
		return LanguageRust
	default:
		return ""
	}
}

// SupportedExtensions returns all supported file extensions
func SupportedExtensions() []string {
	return []string{".rs"}
}

// IsSupportedFile checks if a file is supported based on its extension
func IsSupportedFile(filePath string) bool {
	return DetectLanguage(filePath) != ""
}
