//go:build linux
// +build linux

package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Reader drains the kernel events ring buffer into an EventChannel.
type Reader struct {
	*base.BaseHook

	rd     *ringbuf.Reader
	drops  *ebpf.Map
	events *base.EventChannel
	logger *zap.Logger
	poll   time.Duration

	lifecycle *base.LifecycleManager
	mu        sync.Mutex
	seenDrops uint64
}

// NewReader creates a reader over the events and event_drops maps.
func NewReader(eventsMap, dropsMap *ebpf.Map, ch *base.EventChannel, cfg Config, logger *zap.Logger) (*Reader, error) {
	cfg.SetDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	rd, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create ring buffer reader: %w", err)
	}
	return &Reader{
		BaseHook: base.NewBaseHookWithConfig(base.BaseHookConfig{
			Name:               "ringbuf_reader",
			HealthCheckTimeout: 5 * time.Minute,
			Logger:             logger,
		}),
		rd:     rd,
		drops:  dropsMap,
		events: ch,
		logger: logger,
		poll:   cfg.DropPollInterval,
	}, nil
}

// Start runs the read loop until ctx is cancelled or Stop is called.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lifecycle != nil {
		return errors.New("reader already started")
	}
	r.lifecycle = base.NewLifecycleManager(ctx, r.logger)
	r.lifecycle.Start("ringbuf-read", r.readLoop)
	if r.drops != nil {
		r.lifecycle.Start("kernel-drops", r.pollDrops)
	}
	return nil
}

// Stop stops the loops and closes the ring buffer reader.
func (r *Reader) Stop() error {
	r.mu.Lock()
	lm := r.lifecycle
	r.mu.Unlock()

	var stopErr error
	if lm != nil {
		stopErr = lm.Stop(5 * time.Second)
	}
	if err := r.rd.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close ring buffer reader: %w", err)
	}
	return stopErr
}

// KernelDrops returns the number of events the kernel could not write to
// the ring buffer, summed over CPUs.
func (r *Reader) KernelDrops() (uint64, error) {
	if r.drops == nil {
		return 0, nil
	}
	var perCPU []uint64
	if err := r.drops.Lookup(uint32(0), &perCPU); err != nil {
		return 0, domain.MapError{MapName: domain.MapEventDrops, Operation: "lookup", Cause: err}
	}
	var total uint64
	for _, n := range perCPU {
		total += n
	}
	return total, nil
}

func (r *Reader) readLoop() {
	ctx := r.lifecycle.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.rd.SetDeadline(time.Now().Add(100 * time.Millisecond))
		record, err := r.rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				r.logger.Debug("Ring buffer closed, exiting event processing")
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			r.logger.Debug("Ring buffer read error", zap.Error(err))
			r.RecordError(ctx, err)
			continue
		}
		r.handleRecord(ctx, record.RawSample)
	}
}

func (r *Reader) handleRecord(ctx context.Context, raw []byte) {
	start := time.Now()
	ctx, span := r.Tracer().Start(ctx, "resource.handle_event")
	defer span.End()

	var ev domain.ResourceEvent
	if err := ev.UnmarshalBinary(raw); err != nil {
		r.RecordDrop(ctx, base.DropInvalid, 1)
		r.RecordError(ctx, err)
		span.SetStatus(codes.Error, "invalid record")
		return
	}
	span.SetAttributes(attribute.Int64("cgroup_id", int64(ev.CgroupID)))

	if !r.events.TrySend(ev) {
		r.RecordDrop(ctx, r.events.DropReason(), 1)
		span.SetStatus(codes.Error, "event dropped")
		return
	}
	r.RecordEvent(ctx)
	r.RecordProcessingDuration(ctx, time.Since(start))
}

// pollDrops folds new kernel-side drops into the drop counter.
func (r *Reader) pollDrops() {
	ctx := r.lifecycle.Context()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, err := r.KernelDrops()
			if err != nil {
				r.RecordError(ctx, err)
				continue
			}
			r.foldKernelDrops(ctx, total)
		}
	}
}

// foldKernelDrops records the drops added since the previous poll. A total
// below the last one means the counter was recreated and counts from zero.
func (r *Reader) foldKernelDrops(ctx context.Context, total uint64) uint64 {
	r.mu.Lock()
	delta := total - r.seenDrops
	if total < r.seenDrops {
		delta = total
	}
	r.seenDrops = total
	r.mu.Unlock()

	if delta > 0 {
		r.logger.Warn("Kernel dropped resource events", zap.Uint64("dropped", delta))
		r.RecordDrop(ctx, base.DropKernel, int64(delta))
	}
	return delta
}
