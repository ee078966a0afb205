// Package policy implements the shared policy map: a fixed-capacity table of
// allowed path entries written by the control plane and read, slot by slot,
// by the file-access filter.
//
// Writes are not synchronised with in-flight decisions. A path set while an
// open is being decided may or may not be honoured for that open; every
// later decision observes it.
package policy

import (
	"fmt"

	"github.com/pyisolate/guard/pkg/domain"
)

// Reader is the enforcement side of the policy map.
type Reader interface {
	// Lookup copies slot index into dst. An unset slot reads as all zeroes.
	Lookup(index uint32, dst *domain.PathBuf) error
}

// Writer is the control-plane side of the policy map.
type Writer interface {
	Set(index uint32, path string) error
	Clear(index uint32) error
}

// Table is a policy map that can be both read and written.
type Table interface {
	Reader
	Writer
}

// List returns every non-empty slot, including slots after a hole.
func List(r Reader) ([]domain.AllowedPathEntry, error) {
	var entries []domain.AllowedPathEntry
	var buf domain.PathBuf
	for i := uint32(0); i < domain.PolicySlots; i++ {
		if err := r.Lookup(i, &buf); err != nil {
			return nil, fmt.Errorf("failed to read slot %d: %w", i, err)
		}
		if buf.IsEmpty() {
			continue
		}
		entries = append(entries, domain.AllowedPathEntry{Index: i, Path: buf})
	}
	return entries, nil
}

// Replace writes paths into slots 0..len(paths)-1 and clears the rest. All
// paths are validated before the first write.
func Replace(w Writer, paths []string) error {
	if len(paths) > domain.PolicySlots {
		return fmt.Errorf("%d paths, capacity %d: %w", len(paths), domain.PolicySlots, domain.ErrTooManyEntries)
	}
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("empty path would terminate the allow-list early")
		}
		if _, err := domain.EncodePath(p); err != nil {
			return err
		}
	}

	for i, p := range paths {
		if err := w.Set(uint32(i), p); err != nil {
			return err
		}
	}
	for i := uint32(len(paths)); i < domain.PolicySlots; i++ {
		if err := w.Clear(i); err != nil {
			return err
		}
	}
	return nil
}
