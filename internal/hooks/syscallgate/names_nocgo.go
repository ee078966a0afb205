//go:build !linux || !cgo
// +build !linux !cgo

package syscallgate

import "errors"

// ResolveNames needs libseccomp, which is only linked into linux cgo builds.
func ResolveNames(names []string) ([]uint32, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return nil, errors.New("syscall name resolution requires a linux cgo build with libseccomp")
}
