package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"marketfeed/config"
	"marketfeed/logger"
)

// ErrAdmissionTimeout is returned when a caller's context expires while
// waiting for a slot. The request was never sent, so callers may retry.
var ErrAdmissionTimeout = errors.New("rate limit admission timed out")

// utilizationThreshold is the fraction of a window at which admission starts
// waiting for the oldest in-window request to fall out.
const utilizationThreshold = 0.95

// endpointState tracks the per-endpoint sliding window together with the most
// recent server-reported quota.
type endpointState struct {
	recent []time.Time
	limit  int // static requests-per-second

	// Server-reported quota, authoritative until dynReset passes.
	dynLimit     int
	dynRemaining int
	dynReset     time.Time

	requests int64
}

// Limiter admits pull calls against a whole-client window and a per-endpoint
// window. It delays callers, never rejects them; the only terminal condition
// is the caller's own context expiring.
type Limiter struct {
	mu sync.Mutex

	window      time.Duration
	maxRequests int
	defaultRPS  int

	client    []time.Time
	endpoints map[string]*endpointState
	static    map[string]int

	log *logger.Log
}

// NewLimiter builds a limiter from the rate-limit configuration block.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	static := make(map[string]int, len(cfg.Endpoints))
	for endpoint, rps := range cfg.Endpoints {
		if rps > 0 {
			static[endpoint] = rps
		}
	}
	return &Limiter{
		window:      time.Duration(cfg.WindowMs) * time.Millisecond,
		maxRequests: cfg.MaxRequests,
		defaultRPS:  cfg.EndpointDefault,
		endpoints:   make(map[string]*endpointState),
		static:      static,
		log:         logger.GetLogger(),
	}
}

// Acquire blocks until both the client window and the endpoint window have a
// free slot, then records the request and returns the grant time. The wait is
// a loop rather than a single sleep because concurrent callers race for the
// freed slot.
func (l *Limiter) Acquire(ctx context.Context, endpoint string) (time.Time, error) {
	for {
		grant, wait := l.tryAcquire(endpoint)
		if wait <= 0 {
			return grant, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Time{}, fmt.Errorf("%w: endpoint %s: %v", ErrAdmissionTimeout, endpoint, ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire returns either a grant time with zero wait, or the duration to
// sleep before re-checking.
func (l *Limiter) tryAcquire(endpoint string) (time.Time, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.evictLocked(now)
	st := l.endpointLocked(endpoint)

	// Server-reported quota exhausted: wait out the reset.
	if st.dynReset.After(now) && st.dynLimit > 0 && st.dynRemaining <= 0 {
		return time.Time{}, st.dynReset.Sub(now)
	}

	if wait := windowWait(l.client, l.maxRequests, l.window, now); wait > 0 {
		return time.Time{}, wait
	}

	limit := st.limit
	if st.dynReset.After(now) && st.dynLimit > 0 {
		limit = st.dynLimit
	}
	if wait := windowWait(st.recent, limit, time.Second, now); wait > 0 {
		return time.Time{}, wait
	}

	l.client = append(l.client, now)
	st.recent = append(st.recent, now)
	st.requests++
	if st.dynReset.After(now) && st.dynRemaining > 0 {
		st.dynRemaining--
	}
	return now, 0
}

// windowWait reports how long to wait before the window admits one more
// request, or zero if it admits one now.
func windowWait(recent []time.Time, limit int, window time.Duration, now time.Time) time.Duration {
	if limit <= 0 || len(recent) == 0 {
		return 0
	}
	admit := int(math.Ceil(utilizationThreshold * float64(limit)))
	if len(recent)+1 <= admit {
		return 0
	}
	wait := recent[0].Add(window).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// Observe ingests server-reported quota headers for an endpoint. The dynamic
// limit overrides the static table until reset passes.
func (l *Limiter) Observe(endpoint string, limit, remaining int, reset time.Time) {
	if limit <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.endpointLocked(endpoint)
	st.dynLimit = limit
	st.dynRemaining = remaining
	st.dynReset = reset

	if remaining <= 0 {
		l.log.WithComponent("ratelimit").WithFields(logger.Fields{
			"endpoint":  endpoint,
			"limit":     limit,
			"remaining": remaining,
			"reset":     reset,
		}).Warn("server quota exhausted, deferring until reset")
	}
}

// Record is idempotent bookkeeping for calls admitted outside Acquire, kept
// for observability only.
func (l *Limiter) Record(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpointLocked(endpoint).requests++
}

// Stats reports per-endpoint request totals and current window occupancy.
func (l *Limiter) Stats() map[string]EndpointStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.evictLocked(now)

	out := make(map[string]EndpointStats, len(l.endpoints))
	for endpoint, st := range l.endpoints {
		s := EndpointStats{
			Requests: st.requests,
			InWindow: len(st.recent),
			Limit:    st.limit,
		}
		if st.dynReset.After(now) && st.dynLimit > 0 {
			s.Limit = st.dynLimit
			s.Remaining = st.dynRemaining
		}
		out[endpoint] = s
	}
	return out
}

// EndpointStats is the observable state of one endpoint window.
type EndpointStats struct {
	Requests  int64 `json:"requests"`
	InWindow  int   `json:"in_window"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining,omitempty"`
}

func (l *Limiter) endpointLocked(endpoint string) *endpointState {
	st, ok := l.endpoints[endpoint]
	if !ok {
		limit := l.defaultRPS
		if s, found := l.static[endpoint]; found {
			limit = s
		}
		st = &endpointState{limit: limit}
		l.endpoints[endpoint] = st
	}
	return st
}

// evictLocked drops window entries older than the window length.
func (l *Limiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	l.client = evict(l.client, cutoff)
	epCutoff := now.Add(-time.Second)
	for _, st := range l.endpoints {
		st.recent = evict(st.recent, epCutoff)
	}
}

func evict(recent []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(recent) && !recent[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return recent
	}
	return append(recent[:0], recent[i:]...)
}
