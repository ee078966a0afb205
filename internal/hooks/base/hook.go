// Package base provides the counters, health tracking, OTEL instruments and
// lifecycle handling shared by the guard's hooks.
package base

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DropReason labels why an event never reached user space.
type DropReason string

const (
	DropChannelFull DropReason = "channel_full"
	DropClosed      DropReason = "closed"
	DropResolve     DropReason = "resolve_failed"
	DropTableFull   DropReason = "table_full"
	DropInvalid     DropReason = "invalid_sample"
	DropKernel      DropReason = "kernel_ringbuf_full"
)

// BaseHook tracks statistics and health for one hook or reader.
// Embed it to get Statistics() and Health().
type BaseHook struct {
	name      string
	startTime time.Time

	eventsProcessed atomic.Int64
	eventsDropped   atomic.Int64
	errorCount      atomic.Int64

	lastEventTime atomic.Value // time.Time
	lastError     atomic.Pointer[error]

	isHealthy          atomic.Bool
	healthCheckTimeout time.Duration
	errorRateThreshold float64

	tracer trace.Tracer
	meter  metric.Meter
	logger *zap.Logger

	eventsProcessedCounter metric.Int64Counter
	eventsDroppedCounter   metric.Int64Counter
	errorCounter           metric.Int64Counter
	processingDuration     metric.Float64Histogram
	healthStatus           metric.Int64Gauge
}

// BaseHookConfig configures a BaseHook.
type BaseHookConfig struct {
	Name               string
	HealthCheckTimeout time.Duration
	ErrorRateThreshold float64 // default 0.1

	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider

	Logger *zap.Logger
}

// NewBaseHook creates a base hook with default thresholds.
func NewBaseHook(name string, healthCheckTimeout time.Duration) *BaseHook {
	return NewBaseHookWithConfig(BaseHookConfig{
		Name:               name,
		HealthCheckTimeout: healthCheckTimeout,
	})
}

// NewBaseHookWithConfig creates a base hook from config.
func NewBaseHookWithConfig(config BaseHookConfig) *BaseHook {
	if config.ErrorRateThreshold == 0 {
		config.ErrorRateThreshold = 0.1
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	bh := &BaseHook{
		name:               config.Name,
		startTime:          time.Now(),
		healthCheckTimeout: config.HealthCheckTimeout,
		errorRateThreshold: config.ErrorRateThreshold,
		tracer:             otel.Tracer(config.Name),
		meter:              provider.Meter(config.Name),
		logger:             config.Logger,
	}
	bh.isHealthy.Store(true)
	bh.lastEventTime.Store(time.Now())

	bh.initializeMetrics()

	return bh
}

// initializeMetrics registers the standard instruments. A failed
// instrument is left nil and skipped.
func (bh *BaseHook) initializeMetrics() {
	var err error

	bh.eventsProcessedCounter, err = bh.meter.Int64Counter(
		fmt.Sprintf("%s_events_processed_total", bh.name),
		metric.WithDescription("Total events delivered to user space"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bh.logger.Debug("Failed to create events processed counter", zap.String("hook", bh.name), zap.Error(err))
		bh.eventsProcessedCounter = nil
	}

	bh.eventsDroppedCounter, err = bh.meter.Int64Counter(
		fmt.Sprintf("%s_events_dropped_total", bh.name),
		metric.WithDescription("Total events dropped, by reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bh.logger.Debug("Failed to create events dropped counter", zap.String("hook", bh.name), zap.Error(err))
		bh.eventsDroppedCounter = nil
	}

	bh.errorCounter, err = bh.meter.Int64Counter(
		fmt.Sprintf("%s_errors_total", bh.name),
		metric.WithDescription("Total errors encountered"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bh.logger.Debug("Failed to create error counter", zap.String("hook", bh.name), zap.Error(err))
		bh.errorCounter = nil
	}

	bh.processingDuration, err = bh.meter.Float64Histogram(
		fmt.Sprintf("%s_processing_duration_seconds", bh.name),
		metric.WithDescription("Event processing duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0),
	)
	if err != nil {
		bh.logger.Debug("Failed to create processing duration histogram", zap.String("hook", bh.name), zap.Error(err))
		bh.processingDuration = nil
	}

	// 0=unhealthy, 1=degraded, 2=healthy
	bh.healthStatus, err = bh.meter.Int64Gauge(
		fmt.Sprintf("%s_health_status", bh.name),
		metric.WithDescription("Health status (0=unhealthy, 1=degraded, 2=healthy)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bh.logger.Debug("Failed to create health status gauge", zap.String("hook", bh.name), zap.Error(err))
		bh.healthStatus = nil
	}
}

// RecordEvent counts an event delivered to user space.
func (bh *BaseHook) RecordEvent(ctx context.Context) {
	bh.eventsProcessed.Add(1)
	bh.lastEventTime.Store(time.Now())

	if bh.eventsProcessedCounter != nil {
		bh.eventsProcessedCounter.Add(ctx, 1)
	}
}

// RecordDrop counts n dropped events.
func (bh *BaseHook) RecordDrop(ctx context.Context, reason DropReason, n int64) {
	if n <= 0 {
		return
	}
	bh.eventsDropped.Add(n)

	if bh.eventsDroppedCounter != nil {
		bh.eventsDroppedCounter.Add(ctx, n, metric.WithAttributes(attribute.String("reason", string(reason))))
	}
}

// RecordError counts an error and remembers it for Health.
func (bh *BaseHook) RecordError(ctx context.Context, err error) {
	bh.errorCount.Add(1)
	if err != nil {
		bh.lastError.Store(&err)
	}

	if bh.errorCounter != nil {
		attrs := []attribute.KeyValue{}
		if err != nil {
			attrs = append(attrs, attribute.String("error_type", fmt.Sprintf("%T", err)))
		}
		bh.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
	}
}

// RecordProcessingDuration records how long one event took to handle.
func (bh *BaseHook) RecordProcessingDuration(ctx context.Context, d time.Duration) {
	if bh.processingDuration != nil {
		bh.processingDuration.Record(ctx, d.Seconds())
	}
}

// Tracer returns the hook's tracer.
func (bh *BaseHook) Tracer() trace.Tracer {
	return bh.tracer
}

// Logger returns the hook's logger.
func (bh *BaseHook) Logger() *zap.Logger {
	return bh.logger
}
