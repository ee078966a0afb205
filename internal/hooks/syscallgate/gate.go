// Package syscallgate implements the syscall gate.
//
// The gate is OPEN AND UNRESTRICTED by default: in passthrough mode every
// invocation is allowed and the kernel program returns 0 unconditionally.
// It must not be reported as an active control. Enforce mode applies the
// same fail-closed bounded scan as the file filter to a SyscallTable, in
// user space only.
package syscallgate

import (
	"fmt"

	"github.com/pyisolate/guard/pkg/domain"
)

// Mode selects how the gate decides.
type Mode string

const (
	ModePassthrough Mode = "passthrough"
	ModeEnforce     Mode = "enforce"
)

// PassthroughDescription is how a passthrough gate presents itself.
const PassthroughDescription = "open, unrestricted"

// SyscallContext is the snapshot handed to the gate. Arguments are carried
// but not inspected.
type SyscallContext struct {
	Nr   uint32
	Args [6]uint64
}

// Gate is the syscall gate.
type Gate struct {
	mode  Mode
	table *SyscallTable
}

// New returns a passthrough gate.
func New() *Gate {
	return &Gate{mode: ModePassthrough}
}

// NewEnforcing returns a gate that allows only syscalls present in table.
func NewEnforcing(table *SyscallTable) *Gate {
	return &Gate{mode: ModeEnforce, table: table}
}

// Check decides one invocation.
func (g *Gate) Check(ctx SyscallContext) domain.Verdict {
	if g.mode != ModeEnforce {
		return domain.Allow()
	}
	if g.table == nil {
		return domain.Deny(domain.ReasonResolveFailed)
	}
	return g.table.Check(ctx.Nr)
}

// Mode returns the gate mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Describe returns an operator-facing description of what the gate enforces.
func (g *Gate) Describe() string {
	if g.mode != ModeEnforce {
		return PassthroughDescription
	}
	if g.table == nil {
		return "enforcing, no syscall table, fail-closed"
	}
	return fmt.Sprintf("enforcing, %d syscalls allowed, fail-closed", g.table.Len())
}
