//go:build linux
// +build linux

package policy

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/pyisolate/guard/pkg/domain"
)

// NewMapSpec describes the kernel allow-list map.
func NewMapSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       domain.MapAllowedPaths,
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  domain.PathMax,
		MaxEntries: domain.PolicySlots,
	}
}

// MapTable is the kernel-resident policy map.
type MapTable struct {
	m     *ebpf.Map
	owned bool
}

// NewMapTable wraps an already loaded allow-list map. The caller keeps
// ownership of m.
func NewMapTable(m *ebpf.Map) (*MapTable, error) {
	if err := checkLayout(m); err != nil {
		return nil, err
	}
	return &MapTable{m: m}, nil
}

// OpenPinnedMapTable opens the allow-list map pinned at path.
func OpenPinnedMapTable(path string) (*MapTable, error) {
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		return nil, domain.MapError{MapName: domain.MapAllowedPaths, Operation: "open pinned", Cause: err}
	}
	if err := checkLayout(m); err != nil {
		m.Close()
		return nil, err
	}
	return &MapTable{m: m, owned: true}, nil
}

func checkLayout(m *ebpf.Map) error {
	if m.Type() != ebpf.Array || m.KeySize() != 4 ||
		m.ValueSize() != domain.PathMax || m.MaxEntries() != domain.PolicySlots {
		return domain.MapError{
			MapName:   domain.MapAllowedPaths,
			Operation: "check layout",
			Cause: fmt.Errorf("unexpected map %s key=%d value=%d entries=%d",
				m.Type(), m.KeySize(), m.ValueSize(), m.MaxEntries()),
		}
	}
	return nil
}

// Set stores path at index.
func (t *MapTable) Set(index uint32, path string) error {
	entry, err := domain.NewAllowedPathEntry(index, path)
	if err != nil {
		return err
	}
	if err := t.m.Update(index, &entry.Path, ebpf.UpdateAny); err != nil {
		return domain.MapError{MapName: domain.MapAllowedPaths, Operation: "update", Cause: err}
	}
	return nil
}

// Clear writes an all-zero value; array elements cannot be deleted.
func (t *MapTable) Clear(index uint32) error {
	if index >= domain.PolicySlots {
		return fmt.Errorf("index %d: %w", index, domain.ErrIndexOutOfRange)
	}
	var zero domain.PathBuf
	if err := t.m.Update(index, &zero, ebpf.UpdateAny); err != nil {
		return domain.MapError{MapName: domain.MapAllowedPaths, Operation: "clear", Cause: err}
	}
	return nil
}

// Lookup copies slot index into dst.
func (t *MapTable) Lookup(index uint32, dst *domain.PathBuf) error {
	if index >= domain.PolicySlots {
		return fmt.Errorf("index %d: %w", index, domain.ErrIndexOutOfRange)
	}
	if err := t.m.Lookup(index, dst); err != nil {
		return domain.MapError{MapName: domain.MapAllowedPaths, Operation: "lookup", Cause: err}
	}
	return nil
}

// Close releases the map if it was opened by this table.
func (t *MapTable) Close() error {
	if t.owned {
		return t.m.Close()
	}
	return nil
}
