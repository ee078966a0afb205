package resource

import (
	"testing"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/pyisolate/guard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapReferences(t *testing.T, insns asm.Instructions) map[string]bool {
	t.Helper()
	symbols := map[string]bool{}
	for _, ins := range insns {
		if sym := ins.Symbol(); sym != "" {
			assert.False(t, symbols[sym], "duplicate symbol %s", sym)
			symbols[sym] = true
		}
	}
	maps := map[string]bool{}
	for _, ins := range insns {
		ref := ins.Reference()
		if ref == "" {
			continue
		}
		if ins.IsLoadFromMap() {
			maps[ref] = true
			continue
		}
		assert.True(t, symbols[ref], "unresolved jump to %s", ref)
	}
	return maps
}

func TestCPUProgramSpec(t *testing.T) {
	spec := CPUProgramSpec(10 * time.Millisecond)
	assert.Equal(t, domain.ProgOnCPU, spec.Name)
	assert.Equal(t, ebpf.PerfEvent, spec.Type)
	assert.Equal(t, domain.ProgOnCPU, spec.Instructions[0].Symbol())

	assert.Equal(t, map[string]bool{
		domain.MapCgroupUsage: true,
		domain.MapEvents:      true,
		domain.MapEventDrops:  true,
	}, mapReferences(t, spec.Instructions))

	found := false
	for _, ins := range spec.Instructions {
		if ins.OpCode.IsDWordLoad() && !ins.IsLoadFromMap() && ins.Constant == int64(10*time.Millisecond) {
			found = true
		}
	}
	assert.True(t, found, "sample period not baked into on_cpu")
}

func TestRSSProgramSpec(t *testing.T) {
	spec := RSSProgramSpec(RSSStatLayout{CurrOffset: 12, MemberOffset: 16, SizeOffset: 24})
	assert.Equal(t, domain.ProgOnRSS, spec.Name)
	assert.Equal(t, ebpf.TracePoint, spec.Type)

	insns := spec.Instructions
	require.Greater(t, len(insns), 5)
	assert.Equal(t, int16(12), insns[1].Offset)
	assert.Equal(t, int16(16), insns[3].Offset)
	assert.Equal(t, int64(rssMembers), insns[4].Constant)
	assert.Equal(t, int16(24), insns[5].Offset)

	assert.Len(t, mapReferences(t, insns), 3)
}

func TestRSSProgramSpecWithoutCurr(t *testing.T) {
	with := RSSProgramSpec(RSSStatLayout{CurrOffset: 12, MemberOffset: 16, SizeOffset: 24})
	without := RSSProgramSpec(RSSStatLayout{CurrOffset: -1, MemberOffset: 16, SizeOffset: 24})
	assert.Len(t, without.Instructions, len(with.Instructions)-2)
	assert.Equal(t, int16(16), without.Instructions[1].Offset)
}

func TestProgramsAlwaysReturnZero(t *testing.T) {
	for _, spec := range []*ebpf.ProgramSpec{
		CPUProgramSpec(time.Millisecond),
		RSSProgramSpec(RSSStatLayout{CurrOffset: -1, MemberOffset: 16, SizeOffset: 24}),
	} {
		insns := spec.Instructions
		for i, ins := range insns {
			if ins.OpCode.JumpOp() == asm.Exit {
				assert.Equal(t, int64(0), insns[i-1].Constant, spec.Name)
			}
		}
	}
}

func TestStackLayoutFits(t *testing.T) {
	assert.GreaterOrEqual(t, stackDropKey, -512)
	assert.Equal(t, -72, stackEvent)
}

func TestMapSpecs(t *testing.T) {
	ev := EventsMapSpec(4096)
	assert.Equal(t, ebpf.RingBuf, ev.Type)
	assert.Equal(t, uint32(4096), ev.MaxEntries)

	drops := DropsMapSpec()
	assert.Equal(t, ebpf.PerCPUArray, drops.Type)
	assert.Equal(t, uint32(8), drops.ValueSize)

	usage := UsageMapSpec(1024)
	assert.Equal(t, ebpf.Hash, usage.Type)
	assert.Equal(t, uint32(8), usage.KeySize)
	assert.Equal(t, uint32(usageValueSize), usage.ValueSize)
}
