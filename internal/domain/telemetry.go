package domain

// TelemetrySnapshot is one coarse-checkpoint progress report.
type TelemetrySnapshot struct {
	Timestamp int64 `json:"timestamp"` // Unix milliseconds
	Stage     Stage `json:"stage"`

	// Human-readable work description.
	WorkingOn string `json:"workingOn"`
	Achieved  string `json:"achieved"`
	Remaining string `json:"remaining"`

	// Progress fractions in [0,1].
	OverallProgress float64 `json:"overallProgress"`
	StageProgress   float64 `json:"stageProgress"`

	// Timing, milliseconds. ETA is average observed time per work unit
	// multiplied by units remaining.
	ElapsedMs        int64 `json:"elapsedMs"`
	RemainingMs      int64 `json:"remainingMs"`
	StageElapsedMs   int64 `json:"stageElapsedMs"`
	StageRemainingMs int64 `json:"stageRemainingMs"`

	// Throughput in work units per second.
	Rate float64 `json:"rate"`
}

// MaxTelemetrySnapshots bounds the per-run telemetry ring buffer.
const MaxTelemetrySnapshots = 1200

// RequestDiagnostic records one market-data request attempt, successful or
// not, for the bounded diagnostics ring.
type RequestDiagnostic struct {
	Timestamp int64             `json:"timestamp"` // Unix milliseconds
	Endpoint  string            `json:"endpoint"`
	Status    int               `json:"status"` // 0 on transport error
	Err       string            `json:"error,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"` // selected response headers
	Attempt   int               `json:"attempt"`
}

// MaxRequestDiagnostics bounds the per-run diagnostics ring buffer.
const MaxRequestDiagnostics = 500
