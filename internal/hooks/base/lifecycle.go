package base

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrShutdownTimeout is returned when graceful shutdown times out
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// LifecycleManager owns the goroutines of a reader or loader and stops them
// together.
type LifecycleManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   *zap.Logger

	running atomic.Int32
}

// NewLifecycleManager creates a lifecycle manager derived from ctx
func NewLifecycleManager(ctx context.Context, logger *zap.Logger) *LifecycleManager {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &LifecycleManager{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Start runs fn in a tracked goroutine
func (lm *LifecycleManager) Start(name string, fn func()) {
	lm.wg.Add(1)
	lm.running.Add(1)

	go func() {
		defer lm.wg.Done()
		defer lm.running.Add(-1)

		lm.logger.Debug("Starting goroutine", zap.String("name", name))
		defer lm.logger.Debug("Goroutine stopped", zap.String("name", name))

		fn()
	}()
}

// Stop cancels the context and waits up to timeout for goroutines to exit
func (lm *LifecycleManager) Stop(timeout time.Duration) error {
	lm.stopOnce.Do(func() {
		lm.logger.Debug("Initiating graceful shutdown",
			zap.Int32("running_goroutines", lm.running.Load()),
			zap.Duration("timeout", timeout))
		lm.cancel()
	})

	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		lm.logger.Warn("Shutdown timeout exceeded",
			zap.Int32("still_running", lm.running.Load()))
		return ErrShutdownTimeout
	}
}

// Context returns the lifecycle context
func (lm *LifecycleManager) Context() context.Context {
	return lm.ctx
}

// IsShuttingDown reports whether Stop has been called
func (lm *LifecycleManager) IsShuttingDown() bool {
	return lm.ctx.Err() != nil
}

// Running returns the number of tracked goroutines still running
func (lm *LifecycleManager) Running() int32 {
	return lm.running.Load()
}
