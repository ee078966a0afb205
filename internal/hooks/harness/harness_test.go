package harness

import (
	"os"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyisolate/guard/pkg/domain"
)

func TestRunReturnsContractValue(t *testing.T) {
	assert.Equal(t, 1, Run(&PacketContext{}))
	assert.Equal(t, 1, Run(&PacketContext{Data: []byte{1, 2, 3}}))
}

func TestRunWithoutContext(t *testing.T) {
	assert.Equal(t, 0, Run(nil))
}

func TestProgramSpec(t *testing.T) {
	spec := ProgramSpec()
	assert.Equal(t, "dummy_prog", spec.Name)
	assert.Equal(t, ebpf.XDP, spec.Type)
	require.Len(t, spec.Instructions, 2)
	assert.Equal(t, int64(domain.ContractValue), spec.Instructions[0].Constant)
}

func TestSelfTestInKernel(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Skipping test that requires root privileges")
	}
	require.NoError(t, rlimit.RemoveMemlock())

	prog, err := ebpf.NewProgram(ProgramSpec())
	require.NoError(t, err)
	defer prog.Close()

	ret, err := SelfTest(prog)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), ret)
}
