//go:build !linux
// +build !linux

package loader

import (
	"fmt"
	"runtime"
)

func checkAvailability() *Availability {
	return &Availability{
		Reason: fmt.Sprintf("eBPF is only supported on Linux, current OS: %s", runtime.GOOS),
	}
}
