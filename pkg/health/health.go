// Package health implements liveness and readiness probes. Checks run on a
// background ticker and are debounced with consecutive-failure and
// consecutive-success thresholds so a single slow poll does not flip the
// probe state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// probe is one registered check plus its debounced state. The fails/oks
// counters belong exclusively to the poll goroutine; state and lastErr cross
// goroutines and are atomic.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	state   atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		if p.fails++; p.fails >= defaultFailureThreshold {
			p.state.Store(false)
		}
		return
	}
	p.fails = 0
	if p.oks++; p.oks >= defaultSuccessThreshold {
		p.state.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.state.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "check is unhealthy", true
}

// Health owns a service's probe set. The zero state is not ready; the owner
// flips readiness with SetReady once initialization completes and again
// during shutdown to drain traffic.
type Health struct {
	ready atomic.Bool

	mu       sync.RWMutex
	live     []*probe
	readying []*probe
	cancel   context.CancelFunc
}

// New returns an empty, not-ready Health.
func New() *Health {
	return &Health{}
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, check: check}
	p.state.Store(true)
	return p
}

// AddLivenessCheck registers a check that gates /livez. Liveness answers "is
// this process still functioning" (goroutine leaks, GC stalls).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a check that gates /readyz. Readiness answers
// "can this instance serve traffic" (database, broker reachability).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readying = append(h.readying, newProbe(name, timeout, check))
}

// Start launches one polling goroutine per registered probe. Register all
// checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.live)+len(h.readying))
	probes = append(probes, h.live...)
	probes = append(probes, h.readying...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.poll(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.poll(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the polling goroutines. Safe to call more than once.
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

// IsReady reports whether the manual gate is open and every readiness probe
// passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readying
	h.mu.RUnlock()

	for _, p := range probes {
		if _, failed := p.failure(); failed {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness probe
// passes, otherwise 503 with the failing checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.live))
	copy(probes, h.live)
	h.mu.RUnlock()

	respond(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	probes := make([]*probe, len(h.readying))
	copy(probes, h.readying)
	h.mu.RUnlock()

	failing := failures(probes)
	if !ready {
		failing["_readiness"] = "service is not ready"
	}
	respond(w, failing)
}

func failures(probes []*probe) map[string]string {
	failing := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			failing[p.name] = msg
		}
	}
	return failing
}

func respond(w http.ResponseWriter, failing map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failing) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failing
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
