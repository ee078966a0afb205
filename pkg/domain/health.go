package domain

import "time"

// HealthStatus represents the health status of a hook
type HealthStatus struct {
	Status    HealthStatusValue `json:"status"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`

	LastError     error  `json:"-"`
	LastErrorText string `json:"last_error,omitempty"`
	ErrorCount    int64  `json:"error_count,omitempty"`
}

// HealthStatusValue represents the health state
type HealthStatusValue string

const (
	HealthHealthy   HealthStatusValue = "healthy"
	HealthDegraded  HealthStatusValue = "degraded"
	HealthUnhealthy HealthStatusValue = "unhealthy"
)

// IsHealthy returns true if the status represents a healthy state
func (h HealthStatusValue) IsHealthy() bool {
	return h == HealthHealthy
}

// NewHealthStatus creates a new health status with the given values
func NewHealthStatus(status HealthStatusValue, message string) *HealthStatus {
	return &HealthStatus{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthyStatus creates a healthy status
func NewHealthyStatus(message string) *HealthStatus {
	return NewHealthStatus(HealthHealthy, message)
}

// NewUnhealthyStatus creates an unhealthy status
func NewUnhealthyStatus(message string, err error) *HealthStatus {
	hs := NewHealthStatus(HealthUnhealthy, message)
	if err != nil {
		hs.LastError = err
		hs.LastErrorText = err.Error()
		hs.ErrorCount = 1
	}
	return hs
}

// HookStats is a point-in-time snapshot of a hook's counters.
type HookStats struct {
	EventsProcessed int64             `json:"events_processed"`
	EventsDropped   int64             `json:"events_dropped"`
	ErrorCount      int64             `json:"error_count"`
	LastEventTime   time.Time         `json:"last_event_time"`
	Uptime          time.Duration     `json:"uptime"`
	CustomMetrics   map[string]string `json:"custom_metrics,omitempty"`
}
