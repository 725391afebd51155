package domain

import "time"

// HealthStatus is the readiness verdict of a dependency or of the whole service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

func (s HealthStatus) rank() int {
	switch s {
	case HealthStatusOK, "":
		return 0
	case HealthStatusError:
		return 2
	default:
		return 1
	}
}

// Worse returns whichever of s and other is more severe. Unknown statuses count as degraded.
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if other.rank() > s.rank() {
		return other
	}
	if s == "" {
		return HealthStatusOK
	}
	return s
}

// SystemHealthCheck is the outcome of one dependency check. Only a Critical check can take the
// service to HealthStatusError; a failing optional dependency degrades it.
type SystemHealthCheck struct {
	Status    HealthStatus
	Critical  bool
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// Effective is the status the check contributes to the overall report.
func (c SystemHealthCheck) Effective() HealthStatus {
	if c.Status == HealthStatusError && !c.Critical {
		return HealthStatusDegraded
	}
	return c.Status
}

// SystemHealthReport aggregates dependency check results with build metadata for the readiness endpoint.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Summarise folds every check into a single status.
func Summarise(checks map[string]SystemHealthCheck) HealthStatus {
	status := HealthStatusOK
	for _, check := range checks {
		status = status.Worse(check.Effective())
	}
	return status
}
