package storage

import (
	"fmt"
	"sort"
	"strings"
)

// MemStore is an in-memory Store used by tests and the simulator boot path.
// Names use forward slashes; a trailing path segment shared by several files
// makes the shared prefix behave as a directory.
type MemStore struct {
	files     map[string][]byte
	corrupt   map[string]bool
	unmounted bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		files:   make(map[string][]byte),
		corrupt: make(map[string]bool),
	}
}

// Put adds or replaces a file.
func (s *MemStore) Put(name string, data []byte) {
	s.files[strings.Trim(name, "/")] = data
}

// Corrupt marks a file so reads fail with ErrShortRead.
func (s *MemStore) Corrupt(name string) {
	s.corrupt[strings.Trim(name, "/")] = true
}

// SetMounted toggles the availability of the whole store.
func (s *MemStore) SetMounted(mounted bool) {
	s.unmounted = !mounted
}

// Mounted implements Store.
func (s *MemStore) Mounted() bool { return !s.unmounted }

// Exists implements Store.
func (s *MemStore) Exists(name string) bool {
	name = strings.Trim(name, "/")
	if _, ok := s.files[name]; ok {
		return true
	}
	return s.IsDir(name)
}

// IsDir implements Store.
func (s *MemStore) IsDir(name string) bool {
	name = strings.Trim(name, "/")
	if name == "" {
		return true
	}
	prefix := name + "/"
	for f := range s.files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

// List implements Store.
func (s *MemStore) List(dir string) ([]string, error) {
	if s.unmounted {
		return nil, ErrNotMounted
	}
	dir = strings.Trim(dir, "/")
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	var names []string
	for f := range s.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		if rest == "" || strings.Contains(rest, "/") || strings.HasPrefix(rest, ".") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

// Size implements Store.
func (s *MemStore) Size(name string) (int64, error) {
	data, ok := s.files[strings.Trim(name, "/")]
	if !ok {
		return 0, fmt.Errorf("no such file: %s", name)
	}
	return int64(len(data)), nil
}

// ReadFull implements Store.
func (s *MemStore) ReadFull(name string, buf []byte) (int, error) {
	if s.unmounted {
		return 0, ErrNotMounted
	}
	name = strings.Trim(name, "/")
	data, ok := s.files[name]
	if !ok {
		return 0, fmt.Errorf("no such file: %s", name)
	}
	if len(data) > len(buf) {
		return 0, fmt.Errorf("'%s' is %d bytes, buffer holds %d: %w", name, len(data), len(buf), ErrTooLarge)
	}
	if s.corrupt[name] {
		n := copy(buf, data[:len(data)/2])
		return n, fmt.Errorf("'%s': got %d of %d bytes: %w", name, n, len(data), ErrShortRead)
	}
	return copy(buf, data), nil
}
