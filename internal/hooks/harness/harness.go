// Package harness holds the contract harness, a trivial hook used to check
// that programs load, attach and return the expected constant.
package harness

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/pyisolate/guard/pkg/domain"
)

// PacketContext is the packet snapshot the harness is invoked with.
type PacketContext struct {
	Data []byte
}

// contract is checked on every run.
const contract = domain.ContractValue

// Run returns 1 when the contract holds and ctx is non-nil, 0 otherwise.
func Run(ctx *PacketContext) int {
	if ctx == nil || contract != 1 {
		return 0
	}
	return 1
}

// ProgramSpec builds dummy_prog, an XDP program returning the contract value.
func ProgramSpec() *ebpf.ProgramSpec {
	return &ebpf.ProgramSpec{
		Name:    domain.ProgContractHarness,
		Type:    ebpf.XDP,
		License: domain.License,
		Instructions: asm.Instructions{
			asm.Mov.Imm(asm.R0, contract).WithSymbol(domain.ProgContractHarness),
			asm.Return(),
		},
	}
}

// packetSize is the smallest input BPF_PROG_TEST_RUN accepts for XDP.
const packetSize = 14

// SelfTest runs prog in the kernel once and reports its return value.
func SelfTest(prog *ebpf.Program) (uint32, error) {
	return prog.Run(&ebpf.RunOptions{Data: make([]byte, packetSize)})
}
