// Package domain holds the types shared between the enforcement hooks and the
// user-space control plane: policy entries, verdicts and resource events.
package domain

const (
	// PathMax is the size of a policy entry and of a resolved path buffer,
	// including the terminating NUL.
	PathMax = 4096

	// PolicySlots is the number of entries in the shared policy map.
	PolicySlots = 16

	// SyscallSlots is the number of entries in a syscall policy table.
	SyscallSlots = 64

	// ContractValue is the constant the contract harness checks against.
	ContractValue = 1
)

// Map and program names shared by the kernel collection and user space.
const (
	MapAllowedPaths = "allowed_paths"
	MapPathScratch  = "path_scratch"
	MapEvents       = "events"
	MapEventDrops   = "event_drops"
	MapCgroupUsage  = "cgroup_usage"

	ProgCheckFileOpen   = "check_file_open"
	ProgFilterSyscall   = "filter_syscall"
	ProgOnCPU           = "on_cpu"
	ProgOnRSS           = "on_rss"
	ProgContractHarness = "dummy_prog"
)

// License is declared by every hook program.
const License = "GPL"
