package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashContent(""))
	assert.Len(t, HashContent("use a;"), 64)
	assert.NotEqual(t, HashContent("a"), HashContent("b"))
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "serde json", NormalizeQuery("  serde json \n"))
}

func TestNormalizeProjectRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	got, err := NormalizeProjectRoot(filepath.Join(dir, "sub", ".."))
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(want), got)

	file := filepath.Join(dir, "main.rs")
	require.NoError(t, os.WriteFile(file, []byte("fn main() {}"), 0o644))
	_, err = NormalizeProjectRoot(file)
	assert.Error(t, err)

	_, err = NormalizeProjectRoot(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestComputeProjectID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := ComputeProjectID(dir)
	require.NoError(t, err)
	b, err := ComputeProjectID(dir + string(filepath.Separator) + ".")
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)

	other, err := ComputeProjectID(t.TempDir())
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestUserStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	t.Setenv("DEPSCAN_STATE_DIR", dir)

	got, err := UserStateDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, dir)
}
