// Package resource implements the resource accountant: per-cgroup CPU and
// memory sampling that reports into the event channel without ever blocking
// or failing the sampled code path.
package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/pkg/domain"
	"go.uber.org/zap"
)

// ErrNoCgroup is returned by a SampleContext that cannot name a cgroup.
var ErrNoCgroup = errors.New("no cgroup for sample")

// SampleContext is what a sampling trigger knows about the sampled task.
type SampleContext interface {
	CgroupID() (uint64, error)
}

// Cgroup is a SampleContext for a known cgroup id.
type Cgroup uint64

// CgroupID returns c, or ErrNoCgroup for the zero id.
func (c Cgroup) CgroupID() (uint64, error) {
	if c == 0 {
		return 0, ErrNoCgroup
	}
	return uint64(c), nil
}

// Accountant attributes CPU and RSS samples to cgroups and emits one
// ResourceEvent per accepted sample.
type Accountant struct {
	*base.BaseHook

	period uint64
	table  *usageTable
	events *base.EventChannel
	logger *zap.Logger
}

// NewAccountant creates an accountant that reports into events.
func NewAccountant(cfg Config, events *base.EventChannel, logger *zap.Logger) (*Accountant, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource config: %w", err)
	}
	if events == nil {
		return nil, errors.New("event channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Accountant{
		BaseHook: base.NewBaseHookWithConfig(base.BaseHookConfig{
			Name:               "resource",
			HealthCheckTimeout: 5 * time.Minute,
			Logger:             logger,
		}),
		period: uint64(cfg.SamplePeriod.Nanoseconds()),
		table:  newUsageTable(cfg.TableSize),
		events: events,
		logger: logger,
	}, nil
}

// SampleCPU charges one sampling period to the sampled cgroup. It reports
// whether an event was enqueued.
func (a *Accountant) SampleCPU(sc SampleContext) bool {
	u, id, ok := a.resolve(sc)
	if !ok {
		return false
	}
	cpu := u.cpu.Add(a.period)
	return a.emit(domain.ResourceEvent{
		CgroupID:  id,
		CPUTimeNs: cpu,
		RSSBytes:  u.rssBytes(),
	})
}

// SampleRSS records the latest size in bytes of one mm counter for the
// sampled cgroup. It reports whether an event was enqueued. The value
// replaces the previous one for member regardless of which process reported
// it; see RSSMember.
func (a *Accountant) SampleRSS(sc SampleContext, member RSSMember, size int64) bool {
	if member < 0 || member >= rssMembers {
		a.RecordDrop(context.Background(), base.DropInvalid, 1)
		return false
	}
	u, id, ok := a.resolve(sc)
	if !ok {
		return false
	}
	u.rss[member].Store(size)
	return a.emit(domain.ResourceEvent{
		CgroupID:  id,
		CPUTimeNs: u.cpu.Load(),
		RSSBytes:  u.rssBytes(),
	})
}

// Usage returns the current totals for a cgroup.
func (a *Accountant) Usage(cgroupID uint64) (domain.ResourceEvent, bool) {
	u := a.table.lookup(cgroupID)
	if u == nil {
		return domain.ResourceEvent{}, false
	}
	return domain.ResourceEvent{
		CgroupID:  cgroupID,
		CPUTimeNs: u.cpu.Load(),
		RSSBytes:  u.rssBytes(),
	}, true
}

// Tracked returns how many cgroups have a usage record.
func (a *Accountant) Tracked() int {
	return a.table.len()
}

func (a *Accountant) resolve(sc SampleContext) (*usage, uint64, bool) {
	if sc == nil {
		a.RecordDrop(context.Background(), base.DropResolve, 1)
		return nil, 0, false
	}
	id, err := sc.CgroupID()
	if err != nil || id == 0 {
		a.RecordDrop(context.Background(), base.DropResolve, 1)
		return nil, 0, false
	}
	u := a.table.get(id)
	if u == nil {
		a.RecordDrop(context.Background(), base.DropTableFull, 1)
		return nil, 0, false
	}
	return u, id, true
}

func (a *Accountant) emit(ev domain.ResourceEvent) bool {
	if !a.events.TrySend(ev) {
		a.RecordDrop(context.Background(), a.events.DropReason(), 1)
		return false
	}
	a.RecordEvent(context.Background())
	return true
}
