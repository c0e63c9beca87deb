// Package utils provides shared helper functions.
package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir ensures a directory exists, creating it if necessary.
func EnsureDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// DataPath expands a leading "~" and falls back to ~/.haggle when dir is empty.
func DataPath(dir string) string {
	home, _ := os.UserHomeDir()
	if dir == "" {
		return filepath.Join(home, ".haggle")
	}
	if strings.HasPrefix(dir, "~") {
		return filepath.Join(home, dir[1:])
	}
	return dir
}

// TruncateString truncates s to maxLen runes, adding suffix if truncated.
func TruncateString(s string, maxLen int, suffix string) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if suffix == "" {
		suffix = "..."
	}
	cutoff := maxLen - len([]rune(suffix))
	if cutoff < 0 {
		cutoff = 0
	}
	return string(r[:cutoff]) + suffix
}

// SafeFilename converts a string to a safe filename by replacing unsafe characters.
func SafeFilename(name string) string {
	unsafe := `<>:"/\|?*`
	for _, c := range unsafe {
		name = strings.ReplaceAll(name, string(c), "_")
	}
	name = strings.ReplaceAll(name, "..", "_")
	return strings.TrimSpace(name)
}
