package utils

import (
	"crypto/sha256"
	"depscan/internal/config"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// stateDirName is created under the user's home when no state dir is set.
const stateDirName = ".depscan"

func HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

func NormalizeQuery(query string) string {
	return strings.TrimSpace(query)
}

// NormalizeProjectRoot returns the absolute, cleaned form of root with
// symlinks resolved when possible.
func NormalizeProjectRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return filepath.Clean(abs), nil
}

// ComputeProjectID derives a stable identifier from the normalized project
// root, so the same checkout always maps to the same index collection.
func ComputeProjectID(root string) (string, error) {
	normalized, err := NormalizeProjectRoot(root)
	if err != nil {
		return "", err
	}
	key := filepath.ToSlash(normalized)
	if runtime.GOOS == "windows" {
		key = strings.ToLower(key)
	}
	return HashContent(key)[:16], nil
}

// UserStateDir returns the directory holding local state, creating it if
// needed. DEPSCAN_STATE_DIR overrides the default under the home directory.
func UserStateDir() (string, error) {
	dir := config.Get("DEPSCAN_STATE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, stateDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
