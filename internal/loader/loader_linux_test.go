//go:build linux
// +build linux

package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pyisolate/guard/internal/config"
	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/internal/policy"
	"github.com/pyisolate/guard/pkg/domain"
)

func TestLoadAttachClose(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Skipping test that requires root privileges")
	}
	if _, err := os.Stat("/sys/fs/bpf"); err != nil {
		t.Skip("bpffs not mounted")
	}

	cfg := config.DefaultConfig()
	cfg.PinPath = filepath.Join("/sys/fs/bpf", "pyisolate-test-"+uuid.NewString())
	t.Cleanup(func() { os.RemoveAll(cfg.PinPath) })

	// the file filter would deny opens host-wide once attached
	cfg.Hooks.FileFilter = false
	cfg.Hooks.SyscallGate = CheckAvailability().Available
	cfg.Hooks.Resource = true
	cfg.Hooks.Harness = true

	l, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))
	defer l.Close()

	table, err := l.Policy()
	require.NoError(t, err)
	require.NoError(t, table.Set(0, "/etc/hostname"))

	pinned, err := policy.OpenPinnedMapTable(PinnedPolicyPath(cfg.PinPath))
	require.NoError(t, err)
	defer pinned.Close()
	entries, err := policy.List(pinned)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, l.Attach())

	r, err := l.NewEventReader(base.NewEventChannel(16, "test", zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, r.Stop())

	require.NoError(t, l.Close())
	_, err = l.Policy()
	assert.ErrorIs(t, err, domain.ErrNotLoaded)
	assert.ErrorIs(t, l.Attach(), domain.ErrNotLoaded)
}
