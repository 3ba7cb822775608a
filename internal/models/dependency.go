package models

import "strings"

// Visibility of a declaration.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// DependencyKind is the statement form that declared a dependency.
type DependencyKind string

const (
	KindUse         DependencyKind = "use"
	KindExternCrate DependencyKind = "extern_crate"
	KindMod         DependencyKind = "mod"
)

// Origin classifies where a dependency resolves to.
type Origin string

const (
	OriginInternal Origin = "internal"
	OriginLanguage Origin = "language"
	OriginExternal Origin = "external"
)

// ReasonKind explains why a statement was skipped.
type ReasonKind string

const (
	ReasonUnrecognizedShape  ReasonKind = "unrecognized_statement_shape"
	ReasonAmbiguousAlias     ReasonKind = "ambiguous_alias"
	ReasonUnbalancedGrouping ReasonKind = "unbalanced_grouping"
)

// relativeRoots are leading path segments that resolve inside the current crate.
var relativeRoots = map[string]bool{
	"self":  true,
	"crate": true,
	"super": true,
}

// languageCrates ship with the toolchain.
var languageCrates = map[string]bool{
	"std":        true,
	"core":       true,
	"alloc":      true,
	"proc_macro": true,
	"test":       true,
}

// Dependency is one normalized import extracted from a source file.
type Dependency struct {
	FullPath       []string       `json:"full_path" yaml:"full_path"`
	ImportedSymbol string         `json:"imported_symbol,omitempty" yaml:"imported_symbol,omitempty"`
	HasSymbol      bool           `json:"-" yaml:"-"`
	Alias          string         `json:"alias,omitempty" yaml:"alias,omitempty"`
	HasAlias       bool           `json:"-" yaml:"-"`
	Visibility     Visibility     `json:"visibility" yaml:"visibility"`
	Kind           DependencyKind `json:"kind" yaml:"kind"`
	IsWildcard     bool           `json:"is_wildcard" yaml:"is_wildcard"`
	IsSelfImport   bool           `json:"is_self_import" yaml:"is_self_import"`
	Line           int            `json:"line" yaml:"line"`
}

// Symbol returns the imported symbol and whether one is present.
func (d Dependency) Symbol() (string, bool) {
	return d.ImportedSymbol, d.HasSymbol
}

// AliasName returns the alias and whether one was declared.
func (d Dependency) AliasName() (string, bool) {
	return d.Alias, d.HasAlias
}

// Path joins the full path with the language path separator.
func (d Dependency) Path() string {
	path := strings.Join(d.FullPath, "::")
	if d.IsWildcard {
		path += "::*"
	}
	return path
}

// Root is the first segment that names a crate or module, skipping relative
// markers. It is empty for paths made only of markers.
func (d Dependency) Root() string {
	for _, seg := range d.FullPath {
		if !relativeRoots[seg] {
			return seg
		}
	}
	return ""
}

// Origin classifies the dependency as internal, language or external.
func (d Dependency) Origin() Origin {
	if d.IsSelfImport || d.Kind == KindMod {
		return OriginInternal
	}
	if languageCrates[d.Root()] {
		return OriginLanguage
	}
	return OriginExternal
}

// Name is the component name: the imported symbol, or "*" for wildcards.
func (d Dependency) Name() string {
	if d.IsWildcard || !d.HasSymbol {
		return "*"
	}
	return d.ImportedSymbol
}

// Group is the path leading to the component, "/"-separated, with a leading
// self marker removed.
func (d Dependency) Group() string {
	group := d.FullPath
	if !d.IsWildcard && len(group) > 0 {
		group = group[:len(group)-1]
	}
	if len(group) > 0 && group[0] == "self" {
		group = group[1:]
	}
	return strings.Join(group, "/")
}

// Warning records a statement that was skipped without failing the file.
type Warning struct {
	Statement string     `json:"statement" yaml:"statement"`
	Reason    ReasonKind `json:"reason" yaml:"reason"`
	Line      int        `json:"line" yaml:"line"`
}

// FileDependencies is the extraction result for a single file.
type FileDependencies struct {
	Path         string       `json:"path" yaml:"path"`
	Language     string       `json:"language" yaml:"language"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies"`
	Warnings     []Warning    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
