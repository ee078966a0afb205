package resource

import (
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/pyisolate/guard/pkg/domain"
)

// usageValueSize is the kernel usage record: cpu_ns u64 followed by one s64
// per mm counter.
const usageValueSize = 8 + 8*rssMembers

// BPF_NOEXIST
const updateNoExist = 1

// Stack layout shared by both programs: the u64 cgroup id, a zeroed usage
// record for inserts, the outgoing event and the u32 event_drops key.
const (
	stackKey     = -8
	stackZero    = stackKey - usageValueSize
	stackEvent   = stackZero - domain.ResourceEventSize
	stackDropKey = stackEvent - 8
)

// EventsMapSpec is the ring buffer carrying ResourceEvents to user space.
func EventsMapSpec(size int) *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       domain.MapEvents,
		Type:       ebpf.RingBuf,
		MaxEntries: uint32(size),
	}
}

// DropsMapSpec is the per-CPU counter of events the ring buffer rejected.
func DropsMapSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       domain.MapEventDrops,
		Type:       ebpf.PerCPUArray,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 1,
	}
}

// UsageMapSpec is the kernel's per-cgroup usage table.
func UsageMapSpec(entries int) *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       domain.MapCgroupUsage,
		Type:       ebpf.Hash,
		KeySize:    8,
		ValueSize:  usageValueSize,
		MaxEntries: uint32(entries),
	}
}

// CPUProgramSpec builds on_cpu, attached to a software CPU clock perf event.
// Each invocation charges period to the current cgroup.
func CPUProgramSpec(period time.Duration) *ebpf.ProgramSpec {
	insns := asm.Instructions{
		asm.Mov.Imm(asm.R0, 0).WithSymbol(domain.ProgOnCPU),
	}
	insns = append(insns, usageLookup()...)
	insns = append(insns,
		asm.LoadImm(asm.R1, period.Nanoseconds(), asm.DWord),
		asm.StoreXAdd(asm.R6, asm.R1, asm.DWord),
	)
	insns = append(insns, emitEvent()...)

	return &ebpf.ProgramSpec{
		Name:         domain.ProgOnCPU,
		Type:         ebpf.PerfEvent,
		License:      domain.License,
		Instructions: insns,
	}
}

// RSSProgramSpec builds on_rss for the kmem:rss_stat tracepoint, reading the
// record through layout.
func RSSProgramSpec(layout RSSStatLayout) *ebpf.ProgramSpec {
	insns := asm.Instructions{
		asm.Mov.Imm(asm.R0, 0).WithSymbol(domain.ProgOnRSS),
	}
	if layout.CurrOffset >= 0 {
		// only the current task's mm belongs to the current cgroup
		insns = append(insns,
			asm.LoadMem(asm.R2, asm.R1, int16(layout.CurrOffset), asm.Byte),
			asm.JEq.Imm(asm.R2, 0, "exit"),
		)
	}
	insns = append(insns,
		asm.LoadMem(asm.R7, asm.R1, int16(layout.MemberOffset), asm.Word),
		asm.JGE.Imm(asm.R7, rssMembers, "exit"),
		asm.LoadMem(asm.R8, asm.R1, int16(layout.SizeOffset), asm.DWord),
	)
	insns = append(insns, usageLookup()...)
	insns = append(insns,
		// last writer wins per member, across every mm in the cgroup
		asm.Mov.Reg(asm.R2, asm.R7),
		asm.LSh.Imm(asm.R2, 3),
		asm.Add.Reg(asm.R2, asm.R6),
		asm.StoreMem(asm.R2, 8, asm.R8, asm.DWord),
	)
	insns = append(insns, emitEvent()...)

	return &ebpf.ProgramSpec{
		Name:         domain.ProgOnRSS,
		Type:         ebpf.TracePoint,
		License:      domain.License,
		Instructions: insns,
	}
}

// usageLookup leaves the current cgroup's usage record in R6, creating it if
// needed. Cgroup id 0 and a full table jump to exit.
func usageLookup() asm.Instructions {
	insns := asm.Instructions{
		asm.FnGetCurrentCgroupId.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),
		asm.StoreMem(asm.RFP, stackKey, asm.R0, asm.DWord),

		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapCgroupUsage),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, stackKey),
		asm.FnMapLookupElem.Call(),
		asm.JNE.Imm(asm.R0, 0, "have_usage"),
	}
	for off := 0; off < usageValueSize; off += 8 {
		insns = append(insns, asm.StoreImm(asm.RFP, int16(stackZero+off), 0, asm.DWord))
	}
	return append(insns,
		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapCgroupUsage),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, stackKey),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, stackZero),
		asm.Mov.Imm(asm.R4, updateNoExist),
		asm.FnMapUpdateElem.Call(),

		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapCgroupUsage),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, stackKey),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),

		asm.Mov.Reg(asm.R6, asm.R0).WithSymbol("have_usage"),
	)
}

// emitEvent writes {cgroup, cpu, file+anon+shmem} from R6 to the ring buffer,
// counting a drop in event_drops when it is full, then returns 0.
func emitEvent() asm.Instructions {
	return asm.Instructions{
		asm.LoadMem(asm.R1, asm.RFP, stackKey, asm.DWord),
		asm.StoreMem(asm.RFP, stackEvent, asm.R1, asm.DWord),
		asm.LoadMem(asm.R1, asm.R6, 0, asm.DWord),
		asm.StoreMem(asm.RFP, stackEvent+8, asm.R1, asm.DWord),
		asm.LoadMem(asm.R1, asm.R6, 8+8*int16(MemberFilePages), asm.DWord),
		asm.LoadMem(asm.R2, asm.R6, 8+8*int16(MemberAnonPages), asm.DWord),
		asm.Add.Reg(asm.R1, asm.R2),
		asm.LoadMem(asm.R2, asm.R6, 8+8*int16(MemberShmemPages), asm.DWord),
		asm.Add.Reg(asm.R1, asm.R2),
		asm.StoreMem(asm.RFP, stackEvent+16, asm.R1, asm.DWord),

		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapEvents),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, stackEvent),
		asm.Mov.Imm(asm.R3, domain.ResourceEventSize),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnRingbufOutput.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),

		asm.StoreImm(asm.RFP, stackDropKey, 0, asm.Word),
		asm.LoadMapPtr(asm.R1, 0).WithReference(domain.MapEventDrops),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, stackDropKey),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),
		asm.Mov.Imm(asm.R1, 1),
		asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("exit"),
		asm.Return(),
	}
}
