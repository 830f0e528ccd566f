package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.so"))
	touch(t, filepath.Join(root, "nested", "b.so"))
	touch(t, filepath.Join(root, "notes.txt"))

	files, err := FindFilesByExtension(root, ".so")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.so"),
		filepath.Join(root, "nested", "b.so"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root, "") })
}

func TestFindLibraries(t *testing.T) {
	one, two := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(one, "z.so"))
	touch(t, filepath.Join(two, "a.so"))

	libs, err := FindLibraries([]string{one, two, one, filepath.Join(two, "missing")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(two, "a.so"), filepath.Join(one, "z.so")}, libs)
	assert.IsNonDecreasing(t, libs)
}
