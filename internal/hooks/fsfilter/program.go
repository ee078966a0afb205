package fsfilter

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/pyisolate/guard/pkg/domain"
	"golang.org/x/sys/unix"
)

// ScratchMapSpec describes the per-CPU buffer bpf_d_path writes into; a
// PATH_MAX buffer does not fit on the 512 byte BPF stack.
func ScratchMapSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       domain.MapPathScratch,
		Type:       ebpf.PerCPUArray,
		KeySize:    4,
		ValueSize:  domain.PathMax,
		MaxEntries: 1,
	}
}

// ProgramSpec builds the sleepable lsm/file_open program. fPathOffset is the
// byte offset of f_path in struct file, see FilePathOffset.
//
// The program mirrors Filter.Check: resolve, then for slot 0..N-1 stop at an
// empty slot and compare bytes until the entry's terminator, which the path
// must share. Every loop has a constant bound so the verifier can walk it.
func ProgramSpec(fPathOffset int32) *ebpf.ProgramSpec {
	const (
		rPath  = asm.R6 // scratch buffer holding the resolved path
		rSlot  = asm.R7 // slot index
		rEntry = asm.R8 // allow-list entry
		rByte  = asm.R9 // byte index
	)

	insns := asm.Instructions{
		// r1 = (struct file *)ctx[0]; keep &file->f_path on the stack
		asm.LoadMem(asm.R1, asm.R1, 0, asm.DWord).WithSymbol(domain.ProgCheckFileOpen),
		asm.Add.Imm(asm.R1, fPathOffset),
		asm.StoreMem(asm.RFP, -16, asm.R1, asm.DWord),

		asm.StoreImm(asm.RFP, -4, 0, asm.Word),
		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapPathScratch),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "deny"),
		asm.Mov.Reg(rPath, asm.R0),

		// resolution failure is a denial
		asm.LoadMem(asm.R1, asm.RFP, -16, asm.DWord),
		asm.Mov.Reg(asm.R2, rPath),
		asm.Mov.Imm(asm.R3, domain.PathMax),
		asm.FnDPath.Call(),
		asm.JSLE.Imm(asm.R0, 0, "deny"),

		asm.Mov.Imm(rSlot, 0),

		asm.JGE.Imm(rSlot, domain.PolicySlots, "deny").WithSymbol("slot_loop"),
		asm.StoreMem(asm.RFP, -4, rSlot, asm.Word),
		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapAllowedPaths),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "deny"),
		asm.Mov.Reg(rEntry, asm.R0),

		// empty slot ends the list
		asm.LoadMem(asm.R1, rEntry, 0, asm.Byte),
		asm.JEq.Imm(asm.R1, 0, "deny"),

		asm.Mov.Imm(rByte, 0),

		// an entry without terminator that equals the path everywhere matches
		asm.JGE.Imm(rByte, domain.PathMax, "allow").WithSymbol("byte_loop"),
		asm.Mov.Reg(asm.R1, rEntry),
		asm.Add.Reg(asm.R1, rByte),
		asm.LoadMem(asm.R1, asm.R1, 0, asm.Byte),
		asm.Mov.Reg(asm.R2, rPath),
		asm.Add.Reg(asm.R2, rByte),
		asm.LoadMem(asm.R2, asm.R2, 0, asm.Byte),
		// fall through on the short branch so verification depth stays flat
		asm.JEq.Reg(asm.R1, asm.R2, "bytes_equal"),
		asm.Ja.Label("next_slot"),

		asm.JNE.Imm(asm.R1, 0, "next_byte").WithSymbol("bytes_equal"),
		asm.Ja.Label("allow"),

		asm.Add.Imm(rByte, 1).WithSymbol("next_byte"),
		asm.Ja.Label("byte_loop"),

		asm.Add.Imm(rSlot, 1).WithSymbol("next_slot"),
		asm.Ja.Label("slot_loop"),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("allow"),
		asm.Return(),

		asm.Mov.Imm(asm.R0, -int32(unix.EACCES)).WithSymbol("deny"),
		asm.Return(),
	}

	return &ebpf.ProgramSpec{
		Name:         domain.ProgCheckFileOpen,
		Type:         ebpf.LSM,
		AttachType:   ebpf.AttachLSMMac,
		AttachTo:     "file_open",
		Flags:        unix.BPF_F_SLEEPABLE,
		License:      domain.License,
		Instructions: insns,
	}
}
