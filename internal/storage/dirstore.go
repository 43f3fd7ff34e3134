package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStore serves media from a directory, typically the mount point of the
// removable card. All names are relative to the root; traversal outside it is
// rejected.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory does not have to
// exist yet; Mounted reports its current availability.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Mounted reports whether the root directory is currently reachable.
func (s *DirStore) Mounted() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

func (s *DirStore) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + name)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid media name: %s", name)
	}
	return filepath.Join(s.root, clean), nil
}

// Exists reports whether name refers to an existing file or directory.
func (s *DirStore) Exists(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// IsDir reports whether name refers to a directory.
func (s *DirStore) IsDir(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// List returns the sorted file names (not paths) inside dir, skipping
// subdirectories and dotfiles.
func (s *DirStore) List(dir string) ([]string, error) {
	if !s.Mounted() {
		return nil, ErrNotMounted
	}
	path, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list '%s': %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Size returns the byte length of name.
func (s *DirStore) Size(name string) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat '%s': %w", name, err)
	}
	return info.Size(), nil
}

// ReadFull reads the whole file into buf. See the Store contract.
func (s *DirStore) ReadFull(name string, buf []byte) (int, error) {
	if !s.Mounted() {
		return 0, ErrNotMounted
	}
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat '%s': %w", name, err)
	}
	size := info.Size()
	if size > int64(len(buf)) {
		return 0, fmt.Errorf("'%s' is %d bytes, buffer holds %d: %w", name, size, len(buf), ErrTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open '%s': %w", name, err)
	}
	defer f.Close()

	n, err := io.ReadFull(f, buf[:size])
	if err != nil {
		return n, fmt.Errorf("'%s': got %d of %d bytes: %w", name, n, size, ErrShortRead)
	}
	return n, nil
}
