package domain

// RunBundle is the full durable state of one run: everything needed to
// resurface a run after a restart. Checkpoints replace the entire bundle so
// readers never observe a partial write.
type RunBundle struct {
	Record      *RunRecord          `json:"record"`
	Config      RunConfig           `json:"config"`
	Summary     *ResultSummary      `json:"summary,omitempty"`
	Plots       []PlotPayload       `json:"plots,omitempty"`
	Scripts     map[string]string   `json:"scripts,omitempty"` // filename -> exportable script
	Telemetry   []TelemetrySnapshot `json:"telemetry,omitempty"`
	Diagnostics []RequestDiagnostic `json:"diagnostics,omitempty"`
}

// ExportFile is one entry of a manifest-led export bundle.
type ExportFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

// ExportManifest lists the files of an export bundle.
type ExportManifest struct {
	RunID       string   `json:"runId"`
	GeneratedAt int64    `json:"generatedAt"`
	Files       []string `json:"files"`
}

// ExportBundle is the complete export payload for one run.
type ExportBundle struct {
	Manifest ExportManifest `json:"manifest"`
	Files    []ExportFile   `json:"files"`
}
