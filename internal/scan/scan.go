// Package scan discovers the Rust sources under a project root.
package scan

import (
	"depscan/internal/parser"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"target":       true,
	"node_modules": true,
	"vendor":       true,
	".cargo":       true,
	".idea":        true,
	".vscode":      true,
}

// Options controls which files a Scanner reports.
type Options struct {
	// Exclude holds doublestar patterns matched against root-relative,
	// slash-separated paths. Patterns without a slash also match any
	// single path element.
	Exclude []string
	// MaxFileSize skips larger files. Zero disables the limit.
	MaxFileSize int64
	Logger      *zap.Logger
}

// Scanner walks project trees.
type Scanner struct {
	exclude     []string
	maxFileSize int64
	logger      *zap.Logger
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		exclude:     opts.Exclude,
		maxFileSize: opts.MaxFileSize,
		logger:      logger,
	}
}

// Files returns the supported source files under root in lexical order.
// If root names a single file it is returned as is when supported.
func (s *Scanner) Files(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !parser.IsSupportedFile(root) {
			return nil, nil
		}
		return []string{root}, nil
	}

	patterns := append(loadGitIgnorePatterns(root), s.exclude...)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			if isIgnoredPath(relPath, patterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if !parser.IsSupportedFile(path) || isIgnoredPath(relPath, patterns) {
			return nil
		}

		if s.maxFileSize > 0 {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if fi.Size() > s.maxFileSize {
				s.logger.Warn("skipping large file",
					zap.String("path", relPath),
					zap.String("size", humanize.Bytes(uint64(fi.Size()))),
					zap.String("limit", humanize.Bytes(uint64(s.maxFileSize))),
				)
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	s.logger.Debug("scan complete", zap.String("root", root), zap.Int("files", len(files)))
	return files, nil
}

// loadGitIgnorePatterns reads the root-level .gitignore (if present) and
// returns a list of non-empty, non-comment patterns.
func loadGitIgnorePatterns(rootPath string) []string {
	data, err := os.ReadFile(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// isIgnoredPath applies the subset of .gitignore semantics that matters for
// source discovery. Patterns are root-relative against relPath.
func isIgnoredPath(relPath string, patterns []string) bool {
	relPath = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(relPath)), "./")
	if relPath == "" || relPath == "." {
		return false
	}

	for _, pattern := range patterns {
		p := filepath.ToSlash(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}

		// Directory-style pattern, e.g. "target/".
		if strings.HasSuffix(p, "/") {
			dir := strings.TrimPrefix(strings.TrimSuffix(p, "/"), "/")
			if !strings.ContainsAny(dir, "*?[{") {
				if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
					return true
				}
				continue
			}
			p = dir
		}

		p = strings.TrimPrefix(p, "/")
		if ok, _ := doublestar.PathMatch(p, relPath); ok {
			return true
		}

		// Bare names match any single element, as in .gitignore.
		if !strings.Contains(p, "/") {
			for _, elem := range strings.Split(relPath, "/") {
				if ok, _ := doublestar.Match(p, elem); ok {
					return true
				}
			}
		}
	}

	return false
}
