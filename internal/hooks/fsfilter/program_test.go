package fsfilter

import (
	"testing"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/pyisolate/guard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramSpecShape(t *testing.T) {
	spec := ProgramSpec(16)

	assert.Equal(t, domain.ProgCheckFileOpen, spec.Name)
	assert.Equal(t, ebpf.LSM, spec.Type)
	assert.Equal(t, ebpf.AttachLSMMac, spec.AttachType)
	assert.Equal(t, "file_open", spec.AttachTo)
	assert.Equal(t, domain.License, spec.License)
	require.NotEmpty(t, spec.Instructions)
	assert.Equal(t, domain.ProgCheckFileOpen, spec.Instructions[0].Symbol())
}

func TestProgramSpecReferencesResolve(t *testing.T) {
	insns := ProgramSpec(16).Instructions

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

	assert.Equal(t, map[string]bool{
		domain.MapPathScratch:  true,
		domain.MapAllowedPaths: true,
	}, maps)
}

func TestProgramSpecReturnCodes(t *testing.T) {
	var returns []int64
	insns := ProgramSpec(16).Instructions
	for i, ins := range insns {
		if ins.OpCode.JumpOp() == asm.Exit {
			require.Greater(t, i, 0)
			returns = append(returns, insns[i-1].Constant)
		}
	}
	assert.ElementsMatch(t, []int64{0, -13}, returns)
}

func TestProgramSpecUsesFPathOffset(t *testing.T) {
	insns := ProgramSpec(216).Instructions
	assert.Equal(t, int64(216), insns[1].Constant)
}

func TestScratchMapSpec(t *testing.T) {
	spec := ScratchMapSpec()
	assert.Equal(t, ebpf.PerCPUArray, spec.Type)
	assert.Equal(t, uint32(domain.PathMax), spec.ValueSize)
	assert.Equal(t, uint32(1), spec.MaxEntries)
}
