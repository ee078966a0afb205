package base

import (
	"context"
	"fmt"
	"time"

	"github.com/pyisolate/guard/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SetHealthy sets the hook health status
func (bh *BaseHook) SetHealthy(healthy bool) {
	bh.isHealthy.Store(healthy)
}

// IsHealthy returns true if the hook is healthy
func (bh *BaseHook) IsHealthy() bool {
	return bh.isHealthy.Load()
}

// Statistics returns a snapshot of the hook counters
func (bh *BaseHook) Statistics() *domain.HookStats {
	lastEventTime := time.Time{}
	if t, ok := bh.lastEventTime.Load().(time.Time); ok {
		lastEventTime = t
	}

	return &domain.HookStats{
		EventsProcessed: bh.eventsProcessed.Load(),
		EventsDropped:   bh.eventsDropped.Load(),
		ErrorCount:      bh.errorCount.Load(),
		LastEventTime:   lastEventTime,
		Uptime:          time.Since(bh.startTime),
		CustomMetrics:   map[string]string{},
	}
}

// Health derives a health status from the counters
func (bh *BaseHook) Health() *domain.HealthStatus {
	if !bh.isHealthy.Load() {
		var lastErr error
		if e := bh.lastError.Load(); e != nil {
			lastErr = *e
		}
		bh.recordHealth(0, "unhealthy")
		return domain.NewUnhealthyStatus(fmt.Sprintf("%s hook is unhealthy", bh.name), lastErr)
	}

	if bh.eventsProcessed.Load() > 0 && bh.healthCheckTimeout > 0 {
		lastEventTime, _ := bh.lastEventTime.Load().(time.Time)
		if since := time.Since(lastEventTime); since > bh.healthCheckTimeout {
			bh.recordHealth(1, "stale")
			return domain.NewHealthStatus(domain.HealthDegraded,
				fmt.Sprintf("No events received for %v", since))
		}
	}

	errorRate := float64(0)
	if processed := bh.eventsProcessed.Load(); processed > 0 {
		errorRate = float64(bh.errorCount.Load()) / float64(processed)
	}
	if errorRate > bh.errorRateThreshold {
		bh.recordHealth(1, "high_error_rate")
		return domain.NewHealthStatus(domain.HealthDegraded,
			fmt.Sprintf("High error rate: %.1f%% (threshold: %.1f%%)",
				errorRate*100, bh.errorRateThreshold*100))
	}

	bh.recordHealth(2, "")
	return domain.NewHealthyStatus(fmt.Sprintf("%s hook operating normally", bh.name))
}

func (bh *BaseHook) recordHealth(value int64, reason string) {
	if bh.healthStatus == nil {
		return
	}
	if reason == "" {
		bh.healthStatus.Record(context.Background(), value)
		return
	}
	bh.healthStatus.Record(context.Background(), value,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// GetDroppedCount returns the total number of dropped events
func (bh *BaseHook) GetDroppedCount() int64 {
	return bh.eventsDropped.Load()
}

// GetEventCount returns the total number of delivered events
func (bh *BaseHook) GetEventCount() int64 {
	return bh.eventsProcessed.Load()
}
