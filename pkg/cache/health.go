package cache

import (
	"sync/atomic"
	"time"
)

// DegradedMirrorFailures is the number of consecutive durable-mirror
// failures after which an instance reports degraded. Serving continues.
const DegradedMirrorFailures = 3

// Status is the health classification of a cache instance.
type Status string

const (
	// StatusHealthy indicates normal operation.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates the durable mirror is failing or a probe
	// read returned an unexpected value. The instance still serves.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy indicates a probe operation errored or the
	// instance refused writes after a capacity invariant violation.
	StatusUnhealthy Status = "unhealthy"
)

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// healthState tracks per-instance mirror failures and the fatal-failure
// flag under concurrent access.
type healthState struct {
	consecutiveMirrorFailures atomic.Int64
	failed                    atomic.Bool
}

// recordMirrorFailure counts a failed or timed-out mirror operation and
// returns the new consecutive-failure count.
func (h *healthState) recordMirrorFailure() int64 {
	return h.consecutiveMirrorFailures.Add(1)
}

// recordMirrorSuccess resets the consecutive-failure counter.
func (h *healthState) recordMirrorSuccess() {
	h.consecutiveMirrorFailures.Store(0)
}

// markFailed records a capacity invariant violation. Irreversible for
// the life of the instance.
func (h *healthState) markFailed() {
	h.failed.Store(true)
}

func (h *healthState) isFailed() bool {
	return h.failed.Load()
}

// mirrorDegraded reports whether the mirror has crossed the degraded
// threshold.
func (h *healthState) mirrorDegraded() bool {
	return h.consecutiveMirrorFailures.Load() >= DegradedMirrorFailures
}

// status returns the instance health independent of a probe round-trip.
func (h *healthState) status() Status {
	switch {
	case h.isFailed():
		return StatusUnhealthy
	case h.mirrorDegraded():
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// InstanceHealth is one cache instance's entry in a health report.
type InstanceHealth struct {
	Status  Status          `json:"status"`
	Error   string          `json:"error,omitempty"`
	Metrics MetricsSnapshot `json:"metrics"`
}

// HealthReport aggregates instance health across the manager.
type HealthReport struct {
	Timestamp time.Time                 `json:"timestamp"`
	Overall   Status                    `json:"overall_status"`
	Caches    map[string]InstanceHealth `json:"caches"`
}
