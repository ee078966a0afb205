//go:build linux
// +build linux

package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/internal/hooks/fsfilter"
	"github.com/pyisolate/guard/internal/hooks/harness"
	"github.com/pyisolate/guard/internal/hooks/resource"
	"github.com/pyisolate/guard/internal/hooks/syscallgate"
	"github.com/pyisolate/guard/internal/policy"
	"github.com/pyisolate/guard/pkg/domain"
)

// state holds the kernel objects of a loaded collection.
type state struct {
	coll     *ebpf.Collection
	mapTable *policy.MapTable
	links    []link.Link
	perfFDs  []int
}

// Load builds and loads the collection, pins the policy map and applies the
// configured policy file. Nothing is attached yet.
func (l *Loader) Load(ctx context.Context) error {
	_, span := l.tracer.Start(ctx, "loader.load")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st != nil {
		return errors.New("already loaded")
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		l.logger.Warn("Failed to remove memlock limit", zap.Error(err))
	}

	spec, err := l.collectionSpec()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "building collection spec")
		return err
	}

	if err := os.MkdirAll(l.cfg.PinPath, 0o700); err != nil {
		return fmt.Errorf("failed to create pin path %s: %w", l.cfg.PinPath, err)
	}

	coll, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{
		Maps: ebpf.MapOptions{PinPath: l.cfg.PinPath},
	})
	if err != nil {
		var ve *ebpf.VerifierError
		if errors.As(err, &ve) {
			l.logger.Error("eBPF verifier error", zap.String("details", fmt.Sprintf("%+v", ve)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading collection")
		return fmt.Errorf("failed to load eBPF objects: %w", err)
	}

	mt, err := policy.NewMapTable(coll.Maps[domain.MapAllowedPaths])
	if err != nil {
		coll.Close()
		return err
	}

	l.st = &state{coll: coll, mapTable: mt}
	l.table = mt

	if l.cfg.PolicyFile != "" {
		if err := l.applyPolicyFile(l.cfg.PolicyFile); err != nil {
			l.closeLocked()
			span.RecordError(err)
			return err
		}
	}

	l.logger.Info("eBPF objects loaded",
		zap.Int("programs", len(coll.Programs)),
		zap.Int("maps", len(coll.Maps)),
		zap.String("pin_path", l.cfg.PinPath))
	return nil
}

func (l *Loader) collectionSpec() (*ebpf.CollectionSpec, error) {
	spec := &ebpf.CollectionSpec{
		Maps:     make(map[string]*ebpf.MapSpec),
		Programs: make(map[string]*ebpf.ProgramSpec),
	}

	allowed := policy.NewMapSpec()
	allowed.Pinning = ebpf.PinByName
	spec.Maps[domain.MapAllowedPaths] = allowed

	hooks := l.cfg.Hooks
	if hooks.FileFilter {
		kernel, err := btf.LoadKernelSpec()
		if err != nil {
			return nil, fmt.Errorf("failed to load kernel BTF: %w", err)
		}
		off, err := fsfilter.FilePathOffset(kernel)
		if err != nil {
			return nil, err
		}
		spec.Maps[domain.MapPathScratch] = fsfilter.ScratchMapSpec()
		spec.Programs[domain.ProgCheckFileOpen] = fsfilter.ProgramSpec(off)
	}

	if hooks.SyscallGate {
		spec.Programs[domain.ProgFilterSyscall] = syscallgate.ProgramSpec()
	}

	if hooks.Resource {
		rc := l.cfg.Resource
		spec.Maps[domain.MapEvents] = resource.EventsMapSpec(rc.RingBufferSize)
		spec.Maps[domain.MapEventDrops] = resource.DropsMapSpec()
		spec.Maps[domain.MapCgroupUsage] = resource.UsageMapSpec(rc.TableSize)
		spec.Programs[domain.ProgOnCPU] = resource.CPUProgramSpec(rc.SamplePeriod)

		layout, err := resource.ReadRSSStatLayout()
		if err != nil {
			l.logger.Warn("RSS sampling disabled", zap.Error(err))
		} else {
			spec.Programs[domain.ProgOnRSS] = resource.RSSProgramSpec(layout)
		}
	}

	if hooks.Harness {
		spec.Programs[domain.ProgContractHarness] = harness.ProgramSpec()
	}
	return spec, nil
}

// Attach attaches every loaded program. Failing to attach the file filter
// is fatal; the other hooks are best effort.
func (l *Loader) Attach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st == nil {
		return domain.ErrNotLoaded
	}
	if len(l.st.links) > 0 {
		return errors.New("already attached")
	}
	progs := l.st.coll.Programs

	if p := progs[domain.ProgContractHarness]; p != nil {
		ret, err := harness.SelfTest(p)
		if err != nil {
			l.logger.Warn("Contract harness could not run", zap.Error(err))
		} else if ret != domain.ContractValue {
			return fmt.Errorf("contract harness returned %d, want %d", ret, domain.ContractValue)
		}
	}

	if p := progs[domain.ProgCheckFileOpen]; p != nil {
		lk, err := link.AttachLSM(link.LSMOptions{Program: p})
		if err != nil {
			return fmt.Errorf("failed to attach file filter: %w", err)
		}
		l.st.links = append(l.st.links, lk)
		l.logger.Info("Attached file filter", zap.String("hook", "lsm/file_open"))
	}

	if p := progs[domain.ProgFilterSyscall]; p != nil {
		lk, err := link.AttachLSM(link.LSMOptions{Program: p})
		if err != nil {
			l.logger.Warn("Failed to attach syscall gate", zap.Error(err))
		} else {
			l.st.links = append(l.st.links, lk)
		}
	}
	if l.gate.Mode() == syscallgate.ModePassthrough {
		l.logger.Warn("Syscall gate is not an active control", zap.String("gate", l.gate.Describe()))
	}

	if p := progs[domain.ProgOnCPU]; p != nil {
		if err := l.attachCPUClock(p); err != nil {
			l.logger.Warn("Failed to attach CPU sampling", zap.Error(err))
		}
	}

	if p := progs[domain.ProgOnRSS]; p != nil {
		lk, err := link.Tracepoint("kmem", "rss_stat", p, nil)
		if err != nil {
			l.logger.Warn("Failed to attach rss_stat tracepoint", zap.Error(err))
		} else {
			l.st.links = append(l.st.links, lk)
		}
	}

	l.logger.Info("eBPF programs attached", zap.Int("attached_links", len(l.st.links)))
	return nil
}

// attachCPUClock opens one software CPU clock event per CPU and attaches
// prog to each.
func (l *Loader) attachCPUClock(prog *ebpf.Program) error {
	ncpu, err := ebpf.PossibleCPU()
	if err != nil {
		return err
	}

	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
		Sample: uint64(l.cfg.Resource.SamplePeriod.Nanoseconds()),
	}
	attr.Size = uint32(unsafe.Sizeof(attr))

	attached := 0
	for cpu := 0; cpu < ncpu; cpu++ {
		fd, err := unix.PerfEventOpen(&attr, -1, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			// offline CPU
			if errors.Is(err, unix.ENODEV) {
				continue
			}
			return fmt.Errorf("perf_event_open on cpu %d: %w", cpu, err)
		}
		lk, err := link.AttachRawLink(link.RawLinkOptions{
			Target:  fd,
			Program: prog,
			Attach:  ebpf.AttachPerfEvent,
		})
		if err != nil {
			unix.Close(fd)
			return fmt.Errorf("attaching on_cpu on cpu %d: %w", cpu, err)
		}
		l.st.perfFDs = append(l.st.perfFDs, fd)
		l.st.links = append(l.st.links, lk)
		attached++
	}
	l.logger.Debug("Attached CPU sampling", zap.Int("cpus", attached))
	return nil
}

// NewEventReader returns a reader draining the resource ring buffer into ch.
func (l *Loader) NewEventReader(ch *base.EventChannel) (*resource.Reader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st == nil {
		return nil, domain.ErrNotLoaded
	}
	events := l.st.coll.Maps[domain.MapEvents]
	if events == nil {
		return nil, errors.New("resource hooks are not enabled")
	}
	return resource.NewReader(events, l.st.coll.Maps[domain.MapEventDrops], ch, l.cfg.Resource, l.logger)
}

// Close detaches all programs and releases the collection. The policy map
// stays pinned.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Loader) closeLocked() error {
	if l.st == nil {
		return nil
	}

	var errs []error
	// links first to stop new events
	for _, lk := range l.st.links {
		if err := lk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fd := range l.st.perfFDs {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, err)
		}
	}
	l.st.coll.Close()

	l.st = nil
	l.table = nil
	l.logger.Info("eBPF programs detached")
	return errors.Join(errs...)
}
