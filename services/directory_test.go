package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDirectory verifies CSV loading with a header row and
// case-insensitive district lookup.
func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branches.csv")
	csv := "District,Branch,Branch Head,Contact Email\n" +
		"North,Hilltop,Meena Iyer,meena@example.org\n" +
		"South,Lakeside,Arjun Das,arjun@example.org\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	dir, err := LoadDirectory(path)
	require.NoError(t, err)

	info, ok := dir.Lookup("North")
	require.True(t, ok)
	assert.Equal(t, "Hilltop", info.Branch)
	assert.Equal(t, "Meena Iyer", info.BranchHead)
	assert.Equal(t, "meena@example.org", info.ContactEmail)

	info, ok = dir.Lookup("  south ")
	require.True(t, ok, "lookup is case-insensitive and trims whitespace")
	assert.Equal(t, "Lakeside", info.Branch)

	_, ok = dir.Lookup("East")
	assert.False(t, ok)
}

// TestLoadDirectory_NoHeader verifies a file without a header row still
// loads every line.
func TestLoadDirectory_NoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branches.csv")
	csv := "North,Hilltop,Meena Iyer,meena@example.org\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	dir, err := LoadDirectory(path)
	require.NoError(t, err)

	_, ok := dir.Lookup("north")
	assert.True(t, ok)
}

// TestLoadDirectory_MissingFile verifies a missing file is an error the
// caller can decide to tolerate.
func TestLoadDirectory_MissingFile(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

// TestNewDirectory_EmptyLookup verifies an empty directory simply never
// matches.
func TestNewDirectory_EmptyLookup(t *testing.T) {
	dir := NewDirectory(nil)
	_, ok := dir.Lookup("North")
	assert.False(t, ok)
}
