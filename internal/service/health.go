// internal/service/health.go
package service

import (
	"errors"
	"sync"
	"time"

	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/pkg/driver"
)

// healthTracker accumulates HealthMetrics from operation outcomes
type healthTracker struct {
	mu      sync.Mutex
	metrics driver.HealthMetrics
}

func (h *healthTracker) record(latency time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	m := &h.metrics
	m.TotalOperations++

	if err != nil {
		m.ErrorCount++
		switch {
		case errors.Is(err, stone.ErrTimeout):
			m.TimeoutCount++
		case errors.Is(err, stone.ErrFrameMismatch):
			m.MismatchCount++
		}
		m.LastErrorTime = &now
	} else {
		m.LastSuccessTime = &now
		if m.ResponseTime == 0 {
			m.ResponseTime = latency
		} else {
			// exponential moving average, alpha 1/4
			m.ResponseTime = (3*m.ResponseTime + latency) / 4
		}
	}

	m.SuccessRate = float64(m.TotalOperations-m.ErrorCount) / float64(m.TotalOperations)
}

// snapshot returns the metrics with a health score for the given link state.
// timeout is the per-byte budget; averages above it cost up to 20 points.
func (h *healthTracker) snapshot(connected bool, timeout time.Duration) driver.HealthMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := h.metrics
	switch {
	case !connected:
		m.HealthScore = 0
	case m.TotalOperations == 0:
		m.HealthScore = 100
	default:
		score := int(m.SuccessRate * 100)
		if timeout > 0 && m.ResponseTime > timeout {
			penalty := int(20 * (m.ResponseTime - timeout) / timeout)
			if penalty > 20 {
				penalty = 20
			}
			score -= penalty
		}
		if score < 0 {
			score = 0
		}
		m.HealthScore = score
	}
	return m
}

func (h *healthTracker) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = driver.HealthMetrics{}
}
