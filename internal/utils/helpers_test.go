package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir_Creates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	result, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, result)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureDir_ExistingDir(t *testing.T) {
	dir := t.TempDir()
	result, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, result)
}

func TestDataPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".haggle"), DataPath(""))
	assert.Equal(t, filepath.Join(home, "data"), DataPath("~/data"))
	assert.Equal(t, "/var/lib/haggle", DataPath("/var/lib/haggle"))
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"hello", "hello"},
		{"hello world", "hello world"},
		{`a<b>c:d"e`, "a_b_c_d_e"},
		{"file/with\\slash", "file_with_slash"},
		{"a|b?c*d", "a_b_c_d"},
		{"  spaces  ", "spaces"},
		{"../etc", "__etc"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFilename(tt.input))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10, "..."))
	assert.Equal(t, "hello", TruncateString("hello", 5, "..."))
	assert.Equal(t, "he...", TruncateString("hello world", 5, "..."))
	assert.Equal(t, "hello…", TruncateString("hello world", 6, "…"))
	assert.Equal(t, "₹₹...", TruncateString("₹₹₹₹₹₹", 5, "..."))
}

func TestTruncateString_EmptySuffix(t *testing.T) {
	assert.Equal(t, "he...", TruncateString("hello world", 5, ""))
}
