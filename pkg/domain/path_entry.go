package domain

import (
	"bytes"
	"fmt"
	"strings"
)

// PathBuf is a fixed-size, zero-padded path buffer as stored in the policy map.
type PathBuf [PathMax]byte

// AllowedPathEntry is one slot of the shared policy map.
type AllowedPathEntry struct {
	Index uint32
	Path  PathBuf
}

// NewAllowedPathEntry validates path and encodes it into a zero-padded slot
// value. An empty path produces the end-of-list sentinel.
func NewAllowedPathEntry(index uint32, path string) (AllowedPathEntry, error) {
	if index >= PolicySlots {
		return AllowedPathEntry{}, fmt.Errorf("index %d: %w", index, ErrIndexOutOfRange)
	}
	buf, err := EncodePath(path)
	if err != nil {
		return AllowedPathEntry{}, err
	}
	return AllowedPathEntry{Index: index, Path: buf}, nil
}

// EncodePath copies path into a zero-padded PathBuf.
func EncodePath(path string) (PathBuf, error) {
	var buf PathBuf
	if len(path) >= PathMax {
		return buf, fmt.Errorf("%d bytes: %w", len(path), ErrPathTooLong)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return buf, ErrEmbeddedNUL
	}
	if path != "" && path[0] != '/' {
		return buf, fmt.Errorf("%q: %w", path, ErrPathNotAbsolute)
	}
	copy(buf[:], path)
	return buf, nil
}

// IsEmpty reports whether the entry is the end-of-list sentinel.
func (e *AllowedPathEntry) IsEmpty() bool {
	return e.Path.IsEmpty()
}

// IsEmpty reports whether the buffer holds a zero-length string.
func (b *PathBuf) IsEmpty() bool {
	return b[0] == 0
}

// String returns the buffer contents up to the first NUL.
func (b *PathBuf) String() string {
	if i := bytes.IndexByte(b[:], 0); i >= 0 {
		return string(b[:i])
	}
	return string(b[:])
}
