package authgate

import (
	"sync"
	"time"
)

// Engine defines a public type used by authgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// All session-state transitions go through the Engine's commit methods; no
// component writes the token store directly.
type Engine struct {
	config  Config
	backend Backend
	tokens  TokenStore
	audit   *auditDispatcher
	metrics *Metrics

	// storeMu serializes multi-key commits and snapshot reads so a state
	// read never observes a half-written commit.
	storeMu sync.Mutex

	// stepMu guards the in-memory one-time-code challenge and the login
	// attempt counter. loginGen increments at the start of every Login so a
	// superseded in-flight login can detect that its late response must not
	// commit over newer state.
	stepMu    sync.Mutex
	challenge *otpChallenge
	loginGen  uint64

	// qrMu guards the tracked cross-device approval requests.
	qrMu      sync.Mutex
	qrTracked map[string]*qrRequestState

	// now is swapped by tests; all deadlines derive from it, never from
	// in-memory tick counts.
	now func() time.Time
}

// Close describes the close operation and its observable behavior.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeBackend(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricBackendLatency, e.now().Sub(start))
}
