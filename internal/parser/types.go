package parser

import "depscan/internal/models"

// DependencyParser defines the interface for language-specific dependency
// extractors.
type DependencyParser interface {
	// ExtractDependencies reads one file's already-loaded content and returns
	// the dependencies it declares. Statements that cannot be read are
	// reported as warnings; only fatal syntax problems return an error.
	ExtractDependencies(filePath string, code []byte) (*models.FileDependencies, error)

	// Language returns the language name
	Language() string
}

// Language represents supported programming languages
type Language string

const (
	LanguageRust Language = "rust"
)
