// Package storage is the boundary to the removable media volume. The playback
// context only ever touches media through the Store interface, so tests and
// the boot path without a mounted card share the same code.
package storage

import "errors"

var (
	// ErrNotMounted - the media volume is not available.
	ErrNotMounted = errors.New("storage not mounted")
	// ErrTooLarge - the source exceeds the destination buffer capacity.
	ErrTooLarge = errors.New("source exceeds buffer capacity")
	// ErrShortRead - fewer bytes arrived than the source reported.
	ErrShortRead = errors.New("short read")
)

// Store is the read-only view of the media volume.
//
// ReadFull reads the entire file into buf and returns the byte count. A
// partial read is an error (ErrShortRead), never silently treated as success;
// a file longer than buf fails with ErrTooLarge before any read happens.
type Store interface {
	Mounted() bool
	Exists(name string) bool
	IsDir(name string) bool
	List(dir string) ([]string, error)
	Size(name string) (int64, error)
	ReadFull(name string, buf []byte) (int, error)
}
