// Package loader assembles the guard's kernel programs and maps, loads and
// attaches them, and keeps the shared policy map in sync with the policy
// file.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pyisolate/guard/internal/config"
	"github.com/pyisolate/guard/internal/hooks/syscallgate"
	"github.com/pyisolate/guard/internal/policy"
	"github.com/pyisolate/guard/pkg/domain"
)

// Loader owns the loaded collection and its links.
type Loader struct {
	cfg       *config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
	sessionID string

	gate     *syscallgate.Gate
	syscalls *syscallgate.SyscallTable

	mu    sync.Mutex
	table policy.Table // nil until Load succeeds
	st    *state
}

// New creates a loader. Nothing touches the kernel until Load.
func New(cfg *config.Config, logger *zap.Logger) (*Loader, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionID := uuid.NewString()
	l := &Loader{
		cfg:       cfg,
		logger:    logger.With(zap.String("session_id", sessionID)),
		tracer:    otel.Tracer("loader"),
		sessionID: sessionID,
	}

	if cfg.SyscallGate.Mode == syscallgate.ModeEnforce {
		l.syscalls = syscallgate.NewSyscallTable()
		l.gate = syscallgate.NewEnforcing(l.syscalls)
	} else {
		l.gate = syscallgate.New()
	}
	return l, nil
}

// PinnedPolicyPath is where the allow-list map is pinned under pinPath.
func PinnedPolicyPath(pinPath string) string {
	return filepath.Join(pinPath, domain.MapAllowedPaths)
}

// SessionID identifies this loader instance in logs.
func (l *Loader) SessionID() string {
	return l.sessionID
}

// Gate returns the user-space syscall gate.
func (l *Loader) Gate() *syscallgate.Gate {
	return l.gate
}

// Policy returns the kernel policy table.
func (l *Loader) Policy() (policy.Table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.table == nil {
		return nil, domain.ErrNotLoaded
	}
	return l.table, nil
}

// HotReload re-reads the policy file and rewrites the policy tables. An empty
// path means the configured policy file.
func (l *Loader) HotReload(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.table == nil {
		return domain.ErrNotLoaded
	}
	if path == "" {
		path = l.cfg.PolicyFile
	}
	if path == "" {
		return errors.New("no policy file configured")
	}
	if err := l.applyPolicyFile(path); err != nil {
		return err
	}
	l.logger.Info("Policy reloaded", zap.String("policy_file", path))
	return nil
}

// applyPolicyFile must be called with mu held and table set.
func (l *Loader) applyPolicyFile(path string) error {
	f, err := policy.LoadFile(path)
	if err != nil {
		return err
	}

	// Stage the syscall list so a failed path write leaves both tables as
	// they were.
	var nrs []uint32
	if l.syscalls != nil {
		nrs, err = syscallgate.ResolveNames(f.AllowedSyscalls)
		if err != nil {
			return fmt.Errorf("resolving allowed syscalls: %w", err)
		}
		if err := syscallgate.NewSyscallTable().Replace(nrs); err != nil {
			return err
		}
	}

	if err := f.Apply(l.table); err != nil {
		return fmt.Errorf("applying policy: %w", err)
	}

	if l.syscalls != nil {
		if err := l.syscalls.Replace(nrs); err != nil {
			return err
		}
	}
	l.logger.Debug("Policy applied",
		zap.Int("allowed_paths", len(f.AllowedPaths)),
		zap.Int("allowed_syscalls", len(f.AllowedSyscalls)))
	return nil
}
