// Package health serves liveness and readiness probes.
//
// Every check runs on its own ticker. A check turns unhealthy after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// CheckOption tunes a single check.
type CheckOption func(*check)

// FailureThreshold sets how many consecutive failures mark a check
// unhealthy. Default 3.
func FailureThreshold(n int) CheckOption {
	return func(c *check) { c.failureThreshold = max(n, 1) }
}

// SuccessThreshold sets how many consecutive successes mark a check healthy
// again. Default 1.
func SuccessThreshold(n int) CheckOption {
	return func(c *check) { c.successThreshold = max(n, 1) }
}

// check is driven by a single goroutine; only healthy and lastErr are read
// concurrently.
type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int
	lg               *zap.Logger

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= c.failureThreshold && c.healthy.Swap(false) {
			c.lg.Warn("Health check failing", zap.String("check", c.name), zap.Error(err))
		}
		return
	}
	c.fails = 0
	c.oks++
	if c.oks >= c.successThreshold && !c.healthy.Swap(true) {
		c.lg.Info("Health check recovered", zap.String("check", c.name))
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "check is unhealthy", true
}

// Health holds the liveness and readiness checks of a service.
type Health struct {
	ready atomic.Bool
	lg    *zap.Logger

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health that logs check transitions to lg. The service
// starts not ready; call SetReady(true) once initialized.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

func (h *Health) newCheck(name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) *check {
	c := &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
		lg:               h.lg,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)
	return c
}

// AddLivenessCheck registers a check of the process itself.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	c := h.newCheck(name, timeout, fn, opts)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, c)
}

// AddReadinessCheck registers a check of a dependency needed to serve
// traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	c := h.newCheck(name, timeout, fn, opts)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, c)
}

// Start runs every registered check now and then every interval until Stop
// or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}()
	}
}

// Stop halts the checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(&h.readiness))) == 0
}

func (h *Health) snapshot(checks *[]*check) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(*checks)
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failed = append(failed, failure{name: "_readiness", message: "service is not ready"})
	}
	writeStatus(w, failed)
}

type failure struct {
	name    string
	message string
}

func failures(checks []*check) []failure {
	var out []failure
	for _, c := range checks {
		if msg, failed := c.failure(); failed {
			out = append(out, failure{name: c.name, message: msg})
		}
	}
	return out
}

// writeStatus writes {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failed []failure) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	if len(failed) == 0 {
		e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
	} else {
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.ObjStart()
			for _, f := range failed {
				e.Field(f.name, func(e *jx.Encoder) { e.Str(f.message) })
			}
			e.ObjEnd()
		})
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
