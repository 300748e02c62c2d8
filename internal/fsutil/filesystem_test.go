package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	filesystems := map[string]func(t *testing.T) (FileSystem, string){
		"memory": func(t *testing.T) (FileSystem, string) {
			return NewMemoryFileSystem(), "/out"
		},
		"os": func(t *testing.T) (FileSystem, string) {
			return OSFileSystem{}, t.TempDir()
		},
	}

	for name, setup := range filesystems {
		t.Run(name, func(t *testing.T) {
			fsys, dir := setup(t)
			path := filepath.Join(dir, "nested", "result.bin")

			err := WriteAtomic(fsys, path, func(w io.Writer) error {
				_, err := w.Write([]byte("hello"))
				return err
			})
			require.NoError(t, err)

			data, err := fsys.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))
		})
	}
}

func TestWriteAtomicFailureLeavesNoFile(t *testing.T) {
	fsys := NewMemoryFileSystem()
	boom := errors.New("boom")

	err := WriteAtomic(fsys, "/out/result.png", func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.False(t, Exists(fsys, "/out/result.png"))
	assert.Empty(t, fsys.Files("/out/"), "temp file should be removed")
}

func TestWriteAtomicFailureOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.png")

	err := WriteAtomic(OSFileSystem{}, path, func(w io.Writer) error {
		return errors.New("cancelled")
	})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()

	_, err := m.ReadFile("/missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	m.WriteFile("/a/b.txt", []byte("abc"))
	f, err := m.Open("/a/b.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	info, err := m.Stat("/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	require.NoError(t, m.Rename("/a/b.txt", "/a/c.txt"))
	assert.False(t, Exists(m, "/a/b.txt"))
	assert.True(t, Exists(m, "/a/c.txt"))

	require.NoError(t, m.MkdirAll("/x/y", 0755))
	info, err = m.Stat("/x")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, m.Remove("/a/c.txt"))
	assert.Error(t, m.Remove("/a/c.txt"))
}
