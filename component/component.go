package component

import "context"

// HealthStatus is the coarse state a component reports.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is one component's health report.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a named, long-lived resource with a start/stop lifecycle.
// Names are unique within a Registry.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description summarizes a component for startup logs.
type Description struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Details string `json:"details,omitempty"`
}

// Describable components report a Description. An empty Name is filled
// from Component.Name.
type Describable interface {
	Describe() Description
}

// Worst folds reports into one status: unhealthy beats degraded beats
// healthy. No reports means healthy.
func Worst(reports []Health) HealthStatus {
	worst := StatusHealthy
	for _, h := range reports {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			worst = StatusDegraded
		}
	}
	return worst
}
