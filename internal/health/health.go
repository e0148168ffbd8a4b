// Package health reports the progress of a running archive-upload pass.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the state of the run.
type Status string

const (
	// StatusRunning indicates a run is in progress.
	StatusRunning Status = "running"
	// StatusCompleted indicates the run finished without a fatal error.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run ended with a fatal error.
	StatusFailed Status = "failed"
)

// Report is a point-in-time view of the run.
type Report struct {
	Status       Status    `json:"status"`
	Phase        string    `json:"phase,omitempty"`
	Pending      int       `json:"pending"`
	Started      time.Time `json:"started"`
	PhaseStarted time.Time `json:"phase_started,omitzero"`
	Error        string    `json:"error,omitempty"`
}

// Tracker records the current phase of a run. It is written by the run
// goroutine and read by HTTP handlers. All methods accept a nil receiver.
type Tracker struct {
	mu     sync.RWMutex
	now    func() time.Time
	report Report
}

// NewTracker creates a tracker for a run starting now.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.report = Report{Status: StatusRunning, Started: t.now()}
	return t
}

// StartPhase marks the beginning of a named phase.
func (t *Tracker) StartPhase(phase string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Phase = phase
	t.report.PhaseStarted = t.now()
}

// SetPending records the current queue length.
func (t *Tracker) SetPending(n int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Pending = n
}

// Finish records the run's outcome.
func (t *Tracker) Finish(err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Phase = ""
	t.report.PhaseStarted = time.Time{}
	if err != nil {
		t.report.Status = StatusFailed
		t.report.Error = err.Error()
		return
	}
	t.report.Status = StatusCompleted
}

// Report returns a copy of the current state.
func (t *Tracker) Report() Report {
	if t == nil {
		return Report{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report
}

// Handler returns an HTTP handler that serves the report as JSON. A failed
// run answers 503.
func (t *Tracker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := t.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusFailed {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		// Headers are already sent; nothing useful to do with an encode error.
		_ = json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler returns a simple liveness check handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("alive\n"))
	}
}
