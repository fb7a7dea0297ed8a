package health

import "time"

// Status is the state reported by a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check names used by Client.Health.
const (
	CheckDevice   = "device"
	CheckRegistry = "registry"
	CheckCombined = "combined"
)

// Detail keys set by the checks in this package.
const (
	DetailAddress = "address"
	DetailHost    = "host"
	DetailPort    = "port"
	DetailLatency = "latency_ms"
	DetailError   = "error"
	DetailPlugins = "plugins"
)

// HealthStatus is the outcome of one named check, or of several combined.
type HealthStatus struct {
	Status    Status         `json:"status"`
	Check     string         `json:"check,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

func (h HealthStatus) IsHealthy() bool   { return h.Status == StatusHealthy }
func (h HealthStatus) IsDegraded() bool  { return h.Status == StatusDegraded }
func (h HealthStatus) IsUnhealthy() bool { return h.Status == StatusUnhealthy }

// Summary is the check name followed by its message, e.g.
// "device: failed to connect to 192.168.1.10:80".
func (h HealthStatus) Summary() string {
	check := h.Check
	if check == "" {
		check = "unnamed check"
	}
	if h.Message == "" {
		return check
	}
	return check + ": " + h.Message
}

// Healthy returns a healthy status for check.
func Healthy(check, message string, details map[string]any) HealthStatus {
	return newStatus(StatusHealthy, check, message, details)
}

// Degraded returns a degraded status for check.
func Degraded(check, message string, details map[string]any) HealthStatus {
	return newStatus(StatusDegraded, check, message, details)
}

// Unhealthy returns an unhealthy status for check.
func Unhealthy(check, message string, details map[string]any) HealthStatus {
	return newStatus(StatusUnhealthy, check, message, details)
}

func newStatus(status Status, check, message string, details map[string]any) HealthStatus {
	return HealthStatus{
		Status:    status,
		Check:     check,
		Message:   message,
		Details:   details,
		CheckedAt: time.Now(),
	}
}
