package fsfilter

import (
	"testing"

	"github.com/cilium/ebpf/btf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructMemberOffsetDirect(t *testing.T) {
	file := &btf.Struct{
		Name: "file",
		Size: 256,
		Members: []btf.Member{
			{Name: "f_u", Offset: 0},
			{Name: "f_path", Offset: btf.Bits(16 * 8)},
		},
	}

	off, err := StructMemberOffset(file, "f_path")
	require.NoError(t, err)
	assert.Equal(t, int32(16), off)
}

func TestStructMemberOffsetAnonymous(t *testing.T) {
	inner := &btf.Struct{
		Members: []btf.Member{
			{Name: "f_mode", Offset: 0},
			{Name: "f_path", Offset: btf.Bits(8 * 8)},
		},
	}
	file := &btf.Struct{
		Name: "file",
		Members: []btf.Member{
			{Name: "f_lock", Offset: 0},
			{Name: "", Type: inner, Offset: btf.Bits(64 * 8)},
		},
	}

	off, err := StructMemberOffset(file, "f_path")
	require.NoError(t, err)
	assert.Equal(t, int32(72), off)
}

func TestStructMemberOffsetMissing(t *testing.T) {
	file := &btf.Struct{Name: "file", Members: []btf.Member{{Name: "f_mode"}}}
	_, err := StructMemberOffset(file, "f_path")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
