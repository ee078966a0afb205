package policy

import (
	"fmt"
	"sync/atomic"

	"github.com/pyisolate/guard/pkg/domain"
)

// ArrayTable is an in-process policy map. Each slot is an immutable buffer
// swapped atomically, so readers never see a partially written path.
type ArrayTable struct {
	slots [domain.PolicySlots]atomic.Pointer[domain.PathBuf]
}

// NewArrayTable returns an empty table.
func NewArrayTable() *ArrayTable {
	return &ArrayTable{}
}

// Set stores path at index.
func (t *ArrayTable) Set(index uint32, path string) error {
	entry, err := domain.NewAllowedPathEntry(index, path)
	if err != nil {
		return err
	}
	buf := entry.Path
	t.slots[index].Store(&buf)
	return nil
}

// Clear empties the slot at index.
func (t *ArrayTable) Clear(index uint32) error {
	if index >= domain.PolicySlots {
		return fmt.Errorf("index %d: %w", index, domain.ErrIndexOutOfRange)
	}
	t.slots[index].Store(nil)
	return nil
}

// Lookup copies slot index into dst.
func (t *ArrayTable) Lookup(index uint32, dst *domain.PathBuf) error {
	if index >= domain.PolicySlots {
		return fmt.Errorf("index %d: %w", index, domain.ErrIndexOutOfRange)
	}
	if p := t.slots[index].Load(); p != nil {
		*dst = *p
		return nil
	}
	*dst = domain.PathBuf{}
	return nil
}
