//go:build linux && cgo
// +build linux,cgo

package syscallgate

import (
	"fmt"

	seccomp "github.com/seccomp/libseccomp-golang"
)

// ResolveNames maps syscall names to numbers for the native architecture.
func ResolveNames(names []string) ([]uint32, error) {
	nrs := make([]uint32, 0, len(names))
	for _, name := range names {
		sc, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			return nil, fmt.Errorf("unknown syscall %q: %w", name, err)
		}
		if sc < 0 {
			return nil, fmt.Errorf("syscall %q has no number on this architecture", name)
		}
		nrs = append(nrs, uint32(sc))
	}
	return nrs, nil
}
