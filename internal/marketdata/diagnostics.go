package marketdata

import (
	"sync"

	"indicator-lab/internal/domain"
)

// diagHeaders are the response headers worth keeping per attempt.
var diagHeaders = []string{"Retry-After", "X-Mbx-Used-Weight", "X-Mbx-Used-Weight-1m", "Content-Type"}

// DiagnosticsRecorder is a bounded ring buffer of request attempt records.
// Safe for concurrent use.
type DiagnosticsRecorder struct {
	mu    sync.RWMutex
	ring  []domain.RequestDiagnostic
	next  int
	count int
}

// NewDiagnosticsRecorder creates a recorder capped at
// domain.MaxRequestDiagnostics entries.
func NewDiagnosticsRecorder() *DiagnosticsRecorder {
	return &DiagnosticsRecorder{ring: make([]domain.RequestDiagnostic, domain.MaxRequestDiagnostics)}
}

// Record appends one attempt, evicting the oldest entry once full.
func (r *DiagnosticsRecorder) Record(d domain.RequestDiagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring[r.next] = d
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
}

// Reset empties the ring. Called at run start so one run's persisted
// diagnostics never carry an earlier run's attempts.
func (r *DiagnosticsRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next = 0
	r.count = 0
}

// Snapshot returns the most recent limit entries, oldest first. limit <= 0
// returns everything retained.
func (r *DiagnosticsRecorder) Snapshot(limit int) []domain.RequestDiagnostic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}

	out := make([]domain.RequestDiagnostic, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.ring)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.ring[(start+i)%len(r.ring)])
	}
	return out
}
