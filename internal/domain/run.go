package domain

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run status constants.
const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Stage is the internal progress marker of a running run. Stages only ever
// move forward.
type Stage string

// Stage constants, in execution order.
const (
	StageCreated      Stage = "created"
	StageUniverse     Stage = "universe"
	StageIngest       Stage = "ingest"
	StageOptimization Stage = "optimization"
	StageRanking      Stage = "ranking"
	StageFinished     Stage = "finished"
)

// stageOrder assigns each stage its position for the never-regress check.
var stageOrder = map[Stage]int{
	StageCreated:      0,
	StageUniverse:     1,
	StageIngest:       2,
	StageOptimization: 3,
	StageRanking:      4,
	StageFinished:     5,
}

// Before reports whether s precedes other in the stage sequence.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// EngineParams carries the empirical constants of the evaluation engine.
// The defaults mirror the reference research pass; they are configuration,
// not derived values.
type EngineParams struct {
	// Composite error blend weights.
	WeightRMSE    float64 `json:"weightRmse" yaml:"weight_rmse" default:"0.48"`
	WeightMAE     float64 `json:"weightMae" yaml:"weight_mae" default:"0.34"`
	WeightHitRate float64 `json:"weightHitRate" yaml:"weight_hit_rate" default:"0.18"`

	// Universal recommendation blend weights.
	WeightUniversalHit float64 `json:"weightUniversalHit" yaml:"weight_universal_hit" default:"0.03"`
	WeightUniversalPnl float64 `json:"weightUniversalPnl" yaml:"weight_universal_pnl" default:"0.05"`

	// Backtest parameters.
	SignalThreshold float64 `json:"signalThreshold" yaml:"signal_threshold" default:"0.001"`
	FeeRate         float64 `json:"feeRate" yaml:"fee_rate" default:"0.0012"`

	// Horizon scan bounds (bars ahead).
	HorizonMin  int `json:"horizonMin" yaml:"horizon_min" default:"3"`
	HorizonMax  int `json:"horizonMax" yaml:"horizon_max" default:"200"`
	HorizonStep int `json:"horizonStep" yaml:"horizon_step" default:"10"`

	// Candidate synthesis.
	RandomPairCount int `json:"randomPairCount" yaml:"random_pair_count" default:"24"`

	// Minimum usable rows for a (symbol, timeframe) pair.
	MinPairRows int `json:"minPairRows" yaml:"min_pair_rows" default:"600"`
}

// RunConfig is the immutable configuration of one run.
type RunConfig struct {
	TopNSymbols   int      `json:"topNSymbols" yaml:"top_n_symbols" default:"5" validate:"min=1,max=50"`
	Timeframes    []string `json:"timeframes" yaml:"timeframes" validate:"min=1,dive,oneof=15m 1h 4h 1d"`
	BudgetMinutes int      `json:"budgetMinutes" yaml:"budget_minutes" default:"30" validate:"min=1,max=720"`
	RandomSeed    int64    `json:"randomSeed" yaml:"random_seed" default:"1337"`

	Params EngineParams `json:"params" yaml:"params"`
}

// LogEntry is one immutable run log line, appended on state transitions.
type LogEntry struct {
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
}

// MaxRunLogEntries bounds RunRecord.Logs to the most recent entries.
const MaxRunLogEntries = 300

// RunRecord tracks one run's externally visible state. Mutated only by the
// orchestrator; logs are append-only.
type RunRecord struct {
	RunID     string     `json:"runId"`
	Status    RunStatus  `json:"status"`
	Stage     Stage      `json:"stage"`
	Progress  float64    `json:"progress"` // overall fraction in [0,1]
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
	Logs      []LogEntry `json:"logs"`
	Error     string     `json:"error,omitempty"`
}

// AppendLog appends one log entry, trimming to MaxRunLogEntries.
func (r *RunRecord) AppendLog(e LogEntry) {
	r.Logs = append(r.Logs, e)
	if len(r.Logs) > MaxRunLogEntries {
		r.Logs = r.Logs[len(r.Logs)-MaxRunLogEntries:]
	}
}

// Clone returns a deep copy safe to hand across the API boundary.
func (r *RunRecord) Clone() *RunRecord {
	cp := *r
	cp.Logs = make([]LogEntry, len(r.Logs))
	copy(cp.Logs, r.Logs)
	return &cp
}
