package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirStore(t *testing.T) (*DirStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewDirStore(dir), dir
}

func put(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestMountedTracksDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "card")
	s := NewDirStore(root)
	assert.False(t, s.Mounted())

	require.NoError(t, os.Mkdir(root, 0755))
	assert.True(t, s.Mounted())
}

func TestListSortedSkipsDirsAndDotfiles(t *testing.T) {
	s, dir := newTestDirStore(t)
	put(t, dir, "clip/b002.jpg", []byte("x"))
	put(t, dir, "clip/a001.jpg", []byte("x"))
	put(t, dir, "clip/.thumbs", []byte("x"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "clip", "sub"), 0755))

	names, err := s.List("clip")
	require.NoError(t, err)
	assert.Equal(t, []string{"a001.jpg", "b002.jpg"}, names)
}

func TestReadFullFillsBuffer(t *testing.T) {
	s, dir := newTestDirStore(t)
	put(t, dir, "frame.jpg", []byte("payload"))

	buf := make([]byte, 64)
	n, err := s.ReadFull("frame.jpg", buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestReadFullRejectsOversize(t *testing.T) {
	s, dir := newTestDirStore(t)
	put(t, dir, "big.jpg", make([]byte, 32))

	_, err := s.ReadFull("big.jpg", make([]byte, 16))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestUnmountedRootReturnsErrNotMounted(t *testing.T) {
	s := NewDirStore(filepath.Join(t.TempDir(), "card"))

	_, err := s.List("clip")
	assert.ErrorIs(t, err, ErrNotMounted)

	_, err = s.ReadFull("frame.jpg", make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestTraversalStaysInsideRoot(t *testing.T) {
	s, dir := newTestDirStore(t)
	put(t, dir, "safe.jpg", []byte("ok"))

	assert.False(t, s.Exists("../"+filepath.Base(dir)+"/safe.jpg"))
	assert.True(t, s.Exists("safe.jpg"))
	assert.False(t, s.Exists("/etc/passwd"))
}
