// Package orchestrator owns the run registry and the research-run state
// machine: universe selection, per-pair ingest and optimization, ranking,
// telemetry, and checkpoint persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/idhash"
	"indicator-lab/internal/marketdata"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage"
	"indicator-lab/internal/telemetry"
)

// Orchestrator errors.
var (
	// ErrRunActive indicates a run is already queued or running. Starting a
	// second run is rejected, not queued.
	ErrRunActive = errors.New("a run is already active")

	// ErrRunNotFound indicates no run exists for the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotCompleted indicates results were requested before the run
	// reached the completed state.
	ErrNotCompleted = errors.New("run is not completed")

	// ErrRunNotActive indicates a cancel or subscribe on a terminal run.
	ErrRunNotActive = errors.New("run is not active")

	// ErrPlotNotFound indicates no plot payload exists for the given id.
	ErrPlotNotFound = errors.New("plot not found")
)

// runState is the registry entry for one run: the live bundle plus the
// handles the runner needs.
type runState struct {
	bundle  *domain.RunBundle
	tracker *telemetry.Tracker
	cancel  context.CancelFunc

	outcomes []domain.Outcome
	skipped  []domain.SkippedPair

	done chan struct{} // closed when the runner goroutine exits
}

// Orchestrator coordinates run execution and serves all run reads. It is the
// only writer of run state; the registry is explicit, not ambient.
type Orchestrator struct {
	store   storage.BundleStore
	market  marketdata.Client
	cache   storage.BarCache                 // optional
	diags   *marketdata.DiagnosticsRecorder  // optional
	metrics *observability.Metrics           // optional
	log     zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	runs     map[string]*runState
	order    []string // run ids in creation order
	activeID string   // id of the queued/running run, if any
	sequence uint64
}

// Options for creating an Orchestrator.
type Options struct {
	Store   storage.BundleStore             // required
	Market  marketdata.Client               // required
	Cache   storage.BarCache                // optional bar cache
	Diags   *marketdata.DiagnosticsRecorder // optional, shared with the market client
	Metrics *observability.Metrics          // optional
	Logger  zerolog.Logger
	Now     func() time.Time // test hook, defaults to time.Now
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:   opts.Store,
		market:  opts.Market,
		cache:   opts.Cache,
		diags:   opts.Diags,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     now,
		runs:    make(map[string]*runState),
	}
}

// Recover loads all persisted bundles into the registry. Runs interrupted by
// a process restart (still queued or running on disk) are demoted to failed.
func (o *Orchestrator) Recover(ctx context.Context) error {
	bundles, err := o.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load persisted runs: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, b := range bundles {
		if b.Record == nil {
			continue
		}
		if !b.Record.Status.Terminal() {
			nowMs := o.now().UnixMilli()
			b.Record.Status = domain.StatusFailed
			b.Record.Error = "interrupted by restart"
			b.Record.UpdatedAt = nowMs
			b.Record.AppendLog(domain.LogEntry{
				Timestamp: nowMs,
				Stage:     b.Record.Stage,
				Message:   "interrupted by restart",
			})
			if err := o.store.Put(ctx, b.Record.RunID, b); err != nil {
				return fmt.Errorf("demote interrupted run %s: %w", b.Record.RunID, err)
			}
			o.log.Warn().Str("run_id", b.Record.RunID).Msg("demoted interrupted run to failed")
		}

		st := &runState{bundle: b, done: make(chan struct{})}
		close(st.done)
		o.runs[b.Record.RunID] = st
		o.order = append(o.order, b.Record.RunID)
	}

	return nil
}

// CreateRun registers a new run and starts it asynchronously. cfg must
// already carry defaults and pass validation. Rejected with ErrRunActive if
// another run is queued or running.
func (o *Orchestrator) CreateRun(ctx context.Context, cfg domain.RunConfig) (*domain.RunRecord, error) {
	o.mu.Lock()

	if o.activeID != "" {
		o.mu.Unlock()
		return nil, ErrRunActive
	}

	o.sequence++
	now := o.now()
	nowMs := now.UnixMilli()
	runID := idhash.ComputeRunID(now.UnixNano(), cfg.RandomSeed, o.sequence)

	record := &domain.RunRecord{
		RunID:     runID,
		Status:    domain.StatusQueued,
		Stage:     domain.StageCreated,
		CreatedAt: nowMs,
		UpdatedAt: nowMs,
	}
	record.AppendLog(domain.LogEntry{Timestamp: nowMs, Stage: domain.StageCreated, Message: "run created"})

	runCtx, cancel := context.WithCancel(context.Background())
	st := &runState{
		bundle:  &domain.RunBundle{Record: record, Config: cfg},
		tracker: telemetry.NewTracker(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	o.runs[runID] = st
	o.order = append(o.order, runID)
	o.activeID = runID
	o.mu.Unlock()

	if err := o.checkpoint(st); err != nil {
		o.mu.Lock()
		delete(o.runs, runID)
		o.order = o.order[:len(o.order)-1]
		o.activeID = ""
		o.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("persist new run: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RunsStarted.Inc()
	}
	o.log.Info().Str("run_id", runID).Int("top_n", cfg.TopNSymbols).
		Strs("timeframes", cfg.Timeframes).Int64("seed", cfg.RandomSeed).
		Msg("run created")

	go o.execute(runCtx, st)

	return record.Clone(), nil
}

// CancelRun requests cooperative cancellation of the active run. The run
// stops at the next (symbol, timeframe) boundary.
func (o *Orchestrator) CancelRun(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if st.bundle.Record.Status.Terminal() || st.cancel == nil {
		return ErrRunNotActive
	}
	st.cancel()
	o.log.Info().Str("run_id", runID).Msg("cancellation requested")
	return nil
}

// ListRuns returns all known run records in creation order.
func (o *Orchestrator) ListRuns() []*domain.RunRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*domain.RunRecord, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.runs[id].bundle.Record.Clone())
	}
	return out
}

// GetRun returns the record for one run.
func (o *Orchestrator) GetRun(runID string) (*domain.RunRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return st.bundle.Record.Clone(), nil
}

// Results returns the result summary of a completed run. Errors with
// ErrNotCompleted for any other status; partial results are never served
// as if complete.
func (o *Orchestrator) Results(runID string) (*domain.ResultSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	if st.bundle.Record.Status != domain.StatusCompleted {
		return nil, ErrNotCompleted
	}
	return st.bundle.Summary, nil
}

// Plot returns one plot payload by id.
func (o *Orchestrator) Plot(runID, plotID string) (*domain.PlotPayload, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	for i := range st.bundle.Plots {
		if st.bundle.Plots[i].ID == plotID {
			p := st.bundle.Plots[i]
			return &p, nil
		}
	}
	return nil, ErrPlotNotFound
}

// Telemetry returns the most recent limit snapshots for a run, oldest first.
func (o *Orchestrator) Telemetry(runID string, limit int) ([]domain.TelemetrySnapshot, error) {
	o.mu.Lock()
	st, ok := o.runs[runID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrRunNotFound
	}
	tracker := st.tracker
	persisted := st.bundle.Telemetry
	o.mu.Unlock()

	if tracker != nil {
		return tracker.Snapshots(limit), nil
	}
	return tailSnapshots(persisted, limit), nil
}

// Diagnostics returns the most recent limit request diagnostics for a run,
// oldest first. Live runs read the shared recorder; recovered runs read the
// persisted ring.
func (o *Orchestrator) Diagnostics(runID string, limit int) ([]domain.RequestDiagnostic, error) {
	o.mu.Lock()
	st, ok := o.runs[runID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrRunNotFound
	}
	terminal := st.bundle.Record.Status.Terminal()
	persisted := st.bundle.Diagnostics
	o.mu.Unlock()

	if !terminal && o.diags != nil {
		return o.diags.Snapshot(limit), nil
	}
	if limit <= 0 || limit > len(persisted) {
		limit = len(persisted)
	}
	out := make([]domain.RequestDiagnostic, limit)
	copy(out, persisted[len(persisted)-limit:])
	return out, nil
}

// SubscribeTelemetry opens a live snapshot feed for an active run. The
// returned cancel func must be called to release the subscription.
func (o *Orchestrator) SubscribeTelemetry(runID string) (<-chan domain.TelemetrySnapshot, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runs[runID]
	if !ok {
		return nil, nil, ErrRunNotFound
	}
	if st.bundle.Record.Status.Terminal() || st.tracker == nil {
		return nil, nil, ErrRunNotActive
	}
	ch, cancel := st.tracker.Subscribe()
	return ch, cancel, nil
}

// Bundle returns the full bundle for a run. The caller must treat it as
// read-only.
func (o *Orchestrator) Bundle(runID string) (*domain.RunBundle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	b := *st.bundle
	b.Record = st.bundle.Record.Clone()
	return &b, nil
}

func tailSnapshots(snaps []domain.TelemetrySnapshot, limit int) []domain.TelemetrySnapshot {
	if limit <= 0 || limit > len(snaps) {
		limit = len(snaps)
	}
	out := make([]domain.TelemetrySnapshot, limit)
	copy(out, snaps[len(snaps)-limit:])
	return out
}
