package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateFile ensures files are created in nested directories which do not exist yet.
func TestCreateFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")

	file, err := CreateFile(dir, "run.log")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	info, err := os.Stat(filepath.Join(dir, "run.log"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

// TestMakeDirectory ensures existing directories are accepted and files with the same name are rejected.
func TestMakeDirectory(t *testing.T) {
	root := t.TempDir()

	dir := filepath.Join(root, "a", "b")
	require.NoError(t, MakeDirectory(dir))
	require.NoError(t, MakeDirectory(dir))

	filePath := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0644))
	assert.Error(t, MakeDirectory(filePath))
}
