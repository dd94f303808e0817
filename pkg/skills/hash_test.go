package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTreeDeterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("content"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "references"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "references", "guide.md"), []byte("guide"), 0o644))

	digest1, entries1, err := HashTree(dir)
	require.NoError(t, err)
	digest2, entries2, err := HashTree(dir)
	require.NoError(t, err)

	assert.Equal(t, digest1, digest2)
	assert.Equal(t, entries1, entries2)
	assert.True(t, strings.HasPrefix(digest1, "sha256:"))

	require.Len(t, entries1, 2)
	assert.Equal(t, "SKILL.md", entries1[0].Path)
	assert.Equal(t, "references/guide.md", entries1[1].Path)
	assert.Equal(t, int64(7), entries1[0].Size)
}

func TestHashTreeDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("v1"), 0o644))

	before, _, err := HashTree(dir)
	require.NoError(t, err)

	t.Run("content change", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("v2"), 0o644))
		after, _, err := HashTree(dir)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})

	t.Run("added file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("v1"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte(""), 0o644))
		after, _, err := HashTree(dir)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})
}

func TestHashTreeIdenticalCopies(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	for _, dir := range []string{dirA, dirB} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("same"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "run.sh"), []byte("#!/bin/sh\n"), 0o755))
	}

	digestA, _, err := HashTree(dirA)
	require.NoError(t, err)
	digestB, _, err := HashTree(dirB)
	require.NoError(t, err)
	assert.Equal(t, digestA, digestB)
}

func TestHashTreeErrors(t *testing.T) {
	_, _, err := HashTree(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, _, err = HashTree(file)
	assert.Error(t, err)
}
