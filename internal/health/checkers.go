package health

import (
	"context"
	"time"
)

// PingChecker reports a dependency unhealthy when its ping fails.
type PingChecker struct {
	name    string
	ping    func(ctx context.Context) error
	timeout time.Duration
}

// NewPingChecker wraps ping, bounding each call by timeout.
func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: timeout}
}

func (pc *PingChecker) Name() string {
	return pc.name
}

func (pc *PingChecker) Check(ctx context.Context) *ComponentHealth {
	if pc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pc.timeout)
		defer cancel()
	}
	start := time.Now()
	err := pc.ping(ctx)
	duration := time.Since(start)

	h := &ComponentHealth{
		Name:        pc.name,
		Status:      StatusHealthy,
		Message:     "reachable",
		LastChecked: time.Now(),
		Metadata: map[string]any{
			"response_time_ms": duration.Milliseconds(),
		},
	}
	if err != nil {
		h.Status = StatusUnhealthy
		h.Message = err.Error()
	}
	return h
}

// FreshnessChecker reports a periodic loop degraded when it has not
// completed within maxAge, and unhealthy past twice that.
type FreshnessChecker struct {
	name   string
	last   func() time.Time
	maxAge time.Duration
	now    func() time.Time
}

func NewFreshnessChecker(name string, maxAge time.Duration, last func() time.Time) *FreshnessChecker {
	return &FreshnessChecker{name: name, last: last, maxAge: maxAge, now: time.Now}
}

func (fc *FreshnessChecker) Name() string {
	return fc.name
}

func (fc *FreshnessChecker) Check(_ context.Context) *ComponentHealth {
	now := fc.now()
	h := &ComponentHealth{
		Name:        fc.name,
		Status:      StatusHealthy,
		Message:     "running",
		LastChecked: now,
	}
	last := fc.last()
	if last.IsZero() {
		h.Status = StatusDegraded
		h.Message = "not started"
		return h
	}
	age := now.Sub(last)
	h.Metadata = map[string]any{"age_ms": age.Milliseconds()}
	switch {
	case age > 2*fc.maxAge:
		h.Status = StatusUnhealthy
		h.Message = "stalled"
	case age > fc.maxAge:
		h.Status = StatusDegraded
		h.Message = "lagging"
	}
	return h
}
