package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func relAll(t *testing.T, root string, files []string) []string {
	t.Helper()

	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestScannerFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main.rs":            "use a;",
		"src/lib.rs":             "use b;",
		"src/net/mod.rs":         "mod tcp;",
		"README.md":              "# readme",
		"target/debug/build.rs":  "use c;",
		".git/hooks/x.rs":        "use d;",
		"generated/bindings.rs":  "use e;",
		"benches/big_bench.rs":   "use f;",
		"examples/demo/main.rs":  "use g;",
		"tests/fixtures/skip.rs": "use h;",
		".gitignore":             "# build output\ngenerated/\n*_bench.rs\n",
	})

	s := New(Options{Exclude: []string{"tests/fixtures/**"}})
	files, err := s.Files(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"examples/demo/main.rs",
		"src/lib.rs",
		"src/main.rs",
		"src/net/mod.rs",
	}, relAll(t, root, files))
}

func TestScannerSkipsLargeFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.rs": "use a;",
		"big.rs":   strings.Repeat("use a;\n", 100),
	})

	files, err := New(Options{MaxFileSize: 64}).Files(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.rs"}, relAll(t, root, files))
}

func TestScannerSingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"lib.rs": "use a;", "notes.txt": "x"})

	files, err := New(Options{}).Files(filepath.Join(root, "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "lib.rs")}, files)

	files, err = New(Options{}).Files(filepath.Join(root, "notes.txt"))
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = New(Options{}).Files(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestIsIgnoredPath(t *testing.T) {
	t.Parallel()

	patterns := []string{"target/", "*.generated.rs", "/out", "docs/**/*.rs", "{a,b}_test.rs"}

	tests := map[string]bool{
		"target":                 true,
		"target/debug/x.rs":      true,
		"src/x.generated.rs":     true,
		"out":                    true,
		"docs/book/src/intro.rs": true,
		"src/a_test.rs":          true,
		"src/main.rs":            false,
		"targets/x.rs":           false,
		"":                       false,
	}
	for path, want := range tests {
		assert.Equal(t, want, isIgnoredPath(path, patterns), path)
	}
}
