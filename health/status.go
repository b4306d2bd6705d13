package health

// Health status constants represent the operational state of a component.
const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy = "healthy"

	// StatusDegraded indicates the component is operational but experiencing issues.
	StatusDegraded = "degraded"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy = "unhealthy"
)

// Status is the health state of a plugin or one of its dependencies.
type Status struct {
	// Status is the current health state (healthy, degraded, or unhealthy).
	Status string `json:"status"`

	// Message is a human-readable description of the state.
	Message string `json:"message,omitempty"`

	// Details holds diagnostic context such as the probed address or error.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is StatusDegraded.
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// Healthy creates a healthy status.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded status with optional details.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status with optional details.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}
