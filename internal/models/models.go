package models

// DependencyPayload is the point payload stored for each indexed dependency.
type DependencyPayload struct {
	FilePath       string `json:"file_path"`
	Language       string `json:"language"`
	FullPath       string `json:"full_path"`
	Root           string `json:"root"`
	ImportedSymbol string `json:"imported_symbol"`
	Alias          string `json:"alias"`
	Group          string `json:"group"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Visibility     string `json:"visibility"`
	Origin         string `json:"origin"`
	IsWildcard     bool   `json:"is_wildcard"`
	IsSelfImport   bool   `json:"is_self_import"`
	Line           int    `json:"line"`
	FileHash       string `json:"file_hash"`
}

// NewDependencyPayload flattens a dependency for storage.
func NewDependencyPayload(filePath, language, fileHash string, dep Dependency) DependencyPayload {
	return DependencyPayload{
		FilePath:       filePath,
		Language:       language,
		FullPath:       dep.Path(),
		Root:           dep.Root(),
		ImportedSymbol: dep.ImportedSymbol,
		Alias:          dep.Alias,
		Group:          dep.Group(),
		Name:           dep.Name(),
		Kind:           string(dep.Kind),
		Visibility:     string(dep.Visibility),
		Origin:         string(dep.Origin()),
		IsWildcard:     dep.IsWildcard,
		IsSelfImport:   dep.IsSelfImport,
		Line:           dep.Line,
		FileHash:       fileHash,
	}
}

// Map returns the payload keyed by its JSON field names.
func (p DependencyPayload) Map() map[string]interface{} {
	return map[string]interface{}{
		"file_path":       p.FilePath,
		"language":        p.Language,
		"full_path":       p.FullPath,
		"root":            p.Root,
		"imported_symbol": p.ImportedSymbol,
		"alias":           p.Alias,
		"group":           p.Group,
		"name":            p.Name,
		"kind":            p.Kind,
		"visibility":      p.Visibility,
		"origin":          p.Origin,
		"is_wildcard":     p.IsWildcard,
		"is_self_import":  p.IsSelfImport,
		"line":            p.Line,
		"file_hash":       p.FileHash,
	}
}

// SearchFilter narrows a dependency search.
type SearchFilter struct {
	Origins  []string `json:"origins"`
	Kinds    []string `json:"kinds"`
	FilePath string   `json:"file_path"`
}

// SearchHit is one scored dependency returned by a search.
type SearchHit struct {
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// Component is one deduplicated dependency root across a project.
type Component struct {
	Root   string   `json:"root" yaml:"root"`
	Origin Origin   `json:"origin" yaml:"origin"`
	Paths  []string `json:"paths" yaml:"paths"`
	Files  []string `json:"files" yaml:"files"`
	Count  int      `json:"count" yaml:"count"`
}
