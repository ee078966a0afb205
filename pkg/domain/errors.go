package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned for a policy index outside [0, PolicySlots).
	ErrIndexOutOfRange = errors.New("policy index out of range")

	// ErrPathTooLong is returned when a path plus its terminator exceeds PathMax.
	ErrPathTooLong = errors.New("path exceeds PATH_MAX")

	// ErrPathNotAbsolute is returned for relative policy paths.
	ErrPathNotAbsolute = errors.New("policy path must be absolute")

	// ErrEmbeddedNUL is returned for paths containing a NUL byte.
	ErrEmbeddedNUL = errors.New("path contains NUL byte")

	// ErrTooManyEntries is returned when a policy holds more than PolicySlots paths.
	ErrTooManyEntries = errors.New("too many policy entries")

	// ErrShortRecord is returned when decoding a truncated event record.
	ErrShortRecord = errors.New("event record too short")

	// ErrNotLoaded is returned by operations that require loaded hooks.
	ErrNotLoaded = errors.New("BPF not loaded")

	// ErrUnsupportedPlatform is returned on platforms without eBPF support.
	ErrUnsupportedPlatform = errors.New("eBPF not supported on this platform")
)

// MapError wraps a failed operation on a shared map.
type MapError struct {
	MapName   string
	Operation string
	Cause     error
}

func (e MapError) Error() string {
	return fmt.Sprintf("map %s: %s: %v", e.MapName, e.Operation, e.Cause)
}

func (e MapError) Unwrap() error {
	return e.Cause
}
