package syscallgate

import (
	"fmt"
	"sync/atomic"

	"github.com/pyisolate/guard/pkg/domain"
)

// EmptySlot marks an unused slot and the end of the list.
const EmptySlot = ^uint32(0)

// SyscallTable is a fixed-capacity allow-list of syscall numbers with the
// same layout rules as the path table: dense from index 0, the first empty
// slot ends the list.
type SyscallTable struct {
	slots [domain.SyscallSlots]atomic.Uint32
}

// NewSyscallTable returns an empty table.
func NewSyscallTable() *SyscallTable {
	t := &SyscallTable{}
	for i := range t.slots {
		t.slots[i].Store(EmptySlot)
	}
	return t
}

// Set stores nr at index.
func (t *SyscallTable) Set(index, nr uint32) error {
	if index >= domain.SyscallSlots {
		return fmt.Errorf("index %d: %w", index, domain.ErrIndexOutOfRange)
	}
	if nr == EmptySlot {
		return fmt.Errorf("syscall number %#x is reserved", nr)
	}
	t.slots[index].Store(nr)
	return nil
}

// Clear empties the slot at index.
func (t *SyscallTable) Clear(index uint32) error {
	if index >= domain.SyscallSlots {
		return fmt.Errorf("index %d: %w", index, domain.ErrIndexOutOfRange)
	}
	t.slots[index].Store(EmptySlot)
	return nil
}

// Replace writes nrs densely from slot 0 and clears the rest.
func (t *SyscallTable) Replace(nrs []uint32) error {
	if len(nrs) > domain.SyscallSlots {
		return fmt.Errorf("%d syscalls, capacity %d: %w", len(nrs), domain.SyscallSlots, domain.ErrTooManyEntries)
	}
	for i, nr := range nrs {
		if err := t.Set(uint32(i), nr); err != nil {
			return err
		}
	}
	for i := uint32(len(nrs)); i < domain.SyscallSlots; i++ {
		t.slots[i].Store(EmptySlot)
	}
	return nil
}

// Check scans slots in order, stopping at the first empty one.
func (t *SyscallTable) Check(nr uint32) domain.Verdict {
	for i := 0; i < domain.SyscallSlots; i++ {
		v := t.slots[i].Load()
		if v == EmptySlot {
			return domain.Deny(domain.ReasonEndOfList)
		}
		if v == nr {
			return domain.Allow()
		}
	}
	return domain.Deny(domain.ReasonPolicyMiss)
}

// Len returns the number of entries before the first empty slot.
func (t *SyscallTable) Len() int {
	for i := 0; i < domain.SyscallSlots; i++ {
		if t.slots[i].Load() == EmptySlot {
			return i
		}
	}
	return domain.SyscallSlots
}
