// Package telemetry tracks run progress: per-stage work accounting, ETA
// estimation, and a bounded ring of snapshots scoped to one run.
package telemetry

import (
	"sync"
	"time"

	"indicator-lab/internal/domain"
)

// Tracker accumulates progress snapshots for a single run. Safe for
// concurrent use; the orchestrator writes, API readers and websocket
// subscribers read.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	startedAt      time.Time
	stage          domain.Stage
	stageStartedAt time.Time
	unitsDone      int
	unitsTotal     int

	snapshots []domain.TelemetrySnapshot
	subs      map[int]chan domain.TelemetrySnapshot
	nextSub   int
}

// NewTracker creates a Tracker starting its overall clock now.
func NewTracker() *Tracker {
	return newTrackerAt(time.Now)
}

func newTrackerAt(now func() time.Time) *Tracker {
	return &Tracker{
		now:       now,
		startedAt: now(),
		subs:      make(map[int]chan domain.TelemetrySnapshot),
	}
}

// BeginStage resets per-stage accounting. unitsTotal is the number of work
// units the stage will process (pairs, symbols); zero means unmeasured.
func (t *Tracker) BeginStage(stage domain.Stage, unitsTotal int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stage = stage
	t.stageStartedAt = t.now()
	t.unitsDone = 0
	t.unitsTotal = unitsTotal
}

// Checkpoint records one snapshot. unitsDone is cumulative within the
// current stage; overall is the whole-run progress fraction. The stage ETA
// is the average observed time per unit times the units remaining.
func (t *Tracker) Checkpoint(workingOn, achieved, remaining string, unitsDone int, overall float64) domain.TelemetrySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.unitsDone = unitsDone

	elapsed := now.Sub(t.startedAt)
	stageElapsed := now.Sub(t.stageStartedAt)

	var stageProgress, rate float64
	var stageRemaining, overallRemaining time.Duration
	if t.unitsTotal > 0 {
		stageProgress = float64(unitsDone) / float64(t.unitsTotal)
		if unitsDone > 0 {
			perUnit := stageElapsed / time.Duration(unitsDone)
			stageRemaining = perUnit * time.Duration(t.unitsTotal-unitsDone)
			rate = float64(unitsDone) / stageElapsed.Seconds()
		}
	}
	if overall > 0 {
		overallRemaining = time.Duration(float64(elapsed) * (1 - overall) / overall)
	}

	snap := domain.TelemetrySnapshot{
		Timestamp:        now.UnixMilli(),
		Stage:            t.stage,
		WorkingOn:        workingOn,
		Achieved:         achieved,
		Remaining:        remaining,
		OverallProgress:  clamp01(overall),
		StageProgress:    clamp01(stageProgress),
		ElapsedMs:        elapsed.Milliseconds(),
		RemainingMs:      overallRemaining.Milliseconds(),
		StageElapsedMs:   stageElapsed.Milliseconds(),
		StageRemainingMs: stageRemaining.Milliseconds(),
		Rate:             rate,
	}

	t.snapshots = append(t.snapshots, snap)
	if len(t.snapshots) > domain.MaxTelemetrySnapshots {
		t.snapshots = t.snapshots[len(t.snapshots)-domain.MaxTelemetrySnapshots:]
	}

	for _, ch := range t.subs {
		select {
		case ch <- snap:
		default: // slow subscribers drop snapshots rather than block the run
		}
	}

	return snap
}

// Snapshots returns the most recent limit snapshots, oldest first.
// limit <= 0 returns everything retained.
func (t *Tracker) Snapshots(limit int) []domain.TelemetrySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.snapshots)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.TelemetrySnapshot, limit)
	copy(out, t.snapshots[n-limit:])
	return out
}

// Subscribe registers a live snapshot feed. The returned cancel func must be
// called to release the subscription.
func (t *Tracker) Subscribe() (<-chan domain.TelemetrySnapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan domain.TelemetrySnapshot, 16)
	t.subs[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Close terminates every live subscription. Called once the run reaches a
// terminal state; retained snapshots stay readable.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
