//go:build !linux
// +build !linux

package policy

import "github.com/pyisolate/guard/pkg/domain"

// MapTable is unavailable outside linux.
type MapTable struct{}

// OpenPinnedMapTable always fails outside linux.
func OpenPinnedMapTable(path string) (*MapTable, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (t *MapTable) Set(index uint32, path string) error { return domain.ErrUnsupportedPlatform }
func (t *MapTable) Clear(index uint32) error { return domain.ErrUnsupportedPlatform }
func (t *MapTable) Lookup(index uint32, dst *domain.PathBuf) error { return domain.ErrUnsupportedPlatform }
func (t *MapTable) Close() error { return nil }
