// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// DefaultHealthCooldown is how long a transport is reported degraded after
// a failed exchange.
const DefaultHealthCooldown = 30 * time.Second

// HealthMetrics is a point-in-time snapshot safe to serialize.
type HealthMetrics struct {
	Exchanges     int64      `json:"exchanges"`
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// HealthTracker records exchange outcomes. It is informational only:
// nothing is blocked or retried based on its state.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	lastError    string
	cooldown     time.Duration
	exchanges    int64
	failureCount int64
	nowFunc      func() time.Time
}

// NewHealthTracker creates a tracker that starts healthy.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, cgerr.Errorf(cgerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked must be called with h.mu held.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.exchanges++
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.exchanges++
	h.failureCount++
	if err != nil {
		h.lastError = err.Error()
	}
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

func (h *HealthTracker) Metrics() HealthMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HealthMetrics{
		Exchanges:    h.exchanges,
		FailureCount: h.failureCount,
		LastError:    h.lastError,
		Available:    h.isHealthyLocked(),
	}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}

// Monitored wraps a Transport and feeds every exchange outcome into a
// HealthTracker. Cancelled exchanges are not counted.
type Monitored struct {
	next    Transport
	tracker *HealthTracker
}

// Monitor wraps next with tracker.
func Monitor(next Transport, tracker *HealthTracker) *Monitored {
	return &Monitored{next: next, tracker: tracker}
}

func (m *Monitored) Exchange(ctx context.Context, req Request) (string, error) {
	out, err := m.next.Exchange(ctx, req)
	switch {
	case err == nil:
		m.tracker.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		m.tracker.RecordFailure(err)
	}
	return out, err
}

// Health returns the wrapped transport's health snapshot.
func (m *Monitored) Health() HealthMetrics {
	return m.tracker.Metrics()
}
