package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/internal/hooks/resource"
	"github.com/pyisolate/guard/internal/loader"
	"github.com/pyisolate/guard/pkg/domain"
)

var runPolicyFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load and attach the hooks and stream resource events",
	Long: `Run loads every enabled hook, applies the policy file and logs one line
per resource event until interrupted. SIGHUP reloads the policy file.`,
	Args: cobra.NoArgs,
	RunE: runGuard,
}

func init() {
	runCmd.Flags().StringVar(&runPolicyFile, "policy", "", "policy file applied at load and on SIGHUP")
}

func runGuard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runPolicyFile != "" {
		cfg.PolicyFile = runPolicyFile
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if avail := loader.CheckAvailability(); !avail.Available {
		logger.Error("eBPF requirements not met",
			zap.String("reason", avail.Reason),
			zap.Strings("recommendations", avail.Recommendations))
		return errors.New(avail.Reason)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ld, err := loader.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := ld.Load(ctx); err != nil {
		return err
	}
	defer ld.Close()

	if err := ld.Attach(); err != nil {
		return err
	}

	events := base.NewEventChannel(cfg.EventBufferSize, "resource", logger)
	defer events.Close()
	if cfg.Hooks.Resource {
		reader, err := ld.NewEventReader(events)
		if err != nil {
			return err
		}
		if err := reader.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := reader.Stop(); err != nil {
				logger.Warn("Failed to stop event reader", zap.Error(err))
			}
			logReaderStats(logger, reader)
		}()
		go logEvents(ctx, events, logger)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("Guard running",
		zap.String("session_id", ld.SessionID()),
		zap.String("policy_file", cfg.PolicyFile),
		zap.String("syscall_gate", ld.Gate().Describe()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-hup:
			if err := ld.HotReload(""); err != nil {
				logger.Error("Policy reload failed", zap.Error(err))
			}
		}
	}
}

func logEvents(ctx context.Context, ch *base.EventChannel, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch.Events():
			if !ok {
				return
			}
			logResourceEvent(logger, ev)
		}
	}
}

func logResourceEvent(logger *zap.Logger, ev domain.ResourceEvent) {
	logger.Info("Resource usage",
		zap.Uint64("cgroup_id", ev.CgroupID),
		zap.Uint64("cpu_time_ns", ev.CPUTimeNs),
		zap.Uint64("rss_bytes", ev.RSSBytes))
}

func logReaderStats(logger *zap.Logger, reader *resource.Reader) {
	stats := reader.Statistics()
	fields := []zap.Field{
		zap.Int64("events_processed", stats.EventsProcessed),
		zap.Int64("events_dropped", stats.EventsDropped),
		zap.Int64("errors", stats.ErrorCount),
		zap.Duration("uptime", stats.Uptime),
		zap.String("health", string(reader.Health().Status)),
	}
	if kernel, err := reader.KernelDrops(); err == nil {
		fields = append(fields, zap.Uint64("kernel_drops", kernel))
	}
	logger.Info("Event reader stopped", fields...)
}
