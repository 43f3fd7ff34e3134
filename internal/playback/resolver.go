package playback

import (
	"errors"
	"path"
	"strings"

	"prop-controller/internal/storage"
)

// SourceKind distinguishes a one-shot image from an animated frame sequence.
type SourceKind int

const (
	SourceSingleImage SourceKind = iota
	SourceFrameSequence
)

const (
	// maxFrames caps how many files of a directory become a sequence.
	maxFrames = 30

	// defaultExt is appended as the last resolution strategy.
	defaultExt = ".jpg"

	// firstFrameMark identifies the preferred candidate of a prefix match:
	// exporters name the opening frame of a sequence "<name>001.jpg".
	firstFrameMark = "001"
)

// ErrNotFound - no resolution strategy produced an existing source.
var ErrNotFound = errors.New("media not found")

// Resolution is the outcome of resolving one symbolic media name.
type Resolution struct {
	Kind   SourceKind
	Name   string
	Frames []string
}

// Resolve maps a symbolic name to concrete storage paths. Strategies run in a
// fixed order and the first hit wins:
//
//  1. directory: enumerate contained files, sorted, capped at maxFrames
//  2. exact filename match
//  3. name-prefix match, preferring a stem ending in the first-frame mark
//  4. the name with the default extension appended
//
// Pure except for storage reads; no side effects on any miss.
func Resolve(store storage.Store, name string) (Resolution, error) {
	if !store.Mounted() {
		return Resolution{}, storage.ErrNotMounted
	}
	name = strings.Trim(name, "/")
	if name == "" {
		return Resolution{}, ErrNotFound
	}

	// Strategy 1: directory of frames.
	if store.IsDir(name) {
		files, err := store.List(name)
		if err != nil {
			return Resolution{}, err
		}
		if len(files) == 0 {
			return Resolution{}, ErrNotFound
		}
		if len(files) > maxFrames {
			files = files[:maxFrames]
		}
		frames := make([]string, len(files))
		for i, f := range files {
			frames[i] = path.Join(name, f)
		}
		return Resolution{Kind: SourceFrameSequence, Name: name, Frames: frames}, nil
	}

	// Strategy 2: exact filename.
	if store.Exists(name) {
		return Resolution{Kind: SourceSingleImage, Name: name, Frames: []string{name}}, nil
	}

	// Strategy 3: prefix match in the same directory.
	dir, base := path.Split(name)
	dir = strings.Trim(dir, "/")
	if files, err := store.List(dir); err == nil {
		if match := prefixMatch(files, base); match != "" {
			full := path.Join(dir, match)
			return Resolution{Kind: SourceSingleImage, Name: name, Frames: []string{full}}, nil
		}
	}

	// Strategy 4: default extension.
	withExt := name + defaultExt
	if store.Exists(withExt) {
		return Resolution{Kind: SourceSingleImage, Name: name, Frames: []string{withExt}}, nil
	}

	return Resolution{}, ErrNotFound
}

// prefixMatch picks among files whose stem starts with base, preferring one
// whose stem ends with the first-frame mark, falling back to the
// lexicographically first candidate. Files is assumed sorted.
func prefixMatch(files []string, base string) string {
	first := ""
	for _, f := range files {
		stem := strings.TrimSuffix(f, path.Ext(f))
		if !strings.HasPrefix(stem, base) {
			continue
		}
		if strings.HasSuffix(stem, firstFrameMark) {
			return f
		}
		if first == "" {
			first = f
		}
	}
	return first
}
