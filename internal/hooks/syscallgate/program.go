package syscallgate

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/pyisolate/guard/pkg/domain"
)

// ProgramSpec builds the kernel side of the gate. It allows everything.
func ProgramSpec() *ebpf.ProgramSpec {
	return &ebpf.ProgramSpec{
		Name:       domain.ProgFilterSyscall,
		Type:       ebpf.LSM,
		AttachType: ebpf.AttachLSMMac,
		AttachTo:   "file_open",
		License:    domain.License,
		Instructions: asm.Instructions{
			asm.Mov.Imm(asm.R0, 0).WithSymbol(domain.ProgFilterSyscall),
			asm.Return(),
		},
	}
}
