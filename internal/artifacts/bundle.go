package artifacts

import (
	"encoding/json"
	"fmt"
	"sort"

	"indicator-lab/internal/domain"
)

// MIME types used by export files.
const (
	mimeMarkdown = "text/markdown"
	mimeJSON     = "application/json"
	mimeJSONL    = "application/x-ndjson"
	mimeCSV      = "text/csv"
	mimeText     = "text/plain"
)

// BuildExportBundle assembles the manifest-led export for one run: report,
// run/config/summary JSON, tables, plot payloads, scripts, and the telemetry
// and diagnostics logs, as a flat file list.
func BuildExportBundle(bundle *domain.RunBundle, generatedAt int64) (*domain.ExportBundle, error) {
	var files []domain.ExportFile
	add := func(path, content, mime string) {
		files = append(files, domain.ExportFile{Path: path, Content: content, MimeType: mime})
	}

	add("REPORT.md", RenderMarkdown(bundle), mimeMarkdown)

	runJSON, err := marshalPretty(bundle.Record)
	if err != nil {
		return nil, fmt.Errorf("marshal run record: %w", err)
	}
	add("run.json", runJSON, mimeJSON)

	cfgJSON, err := marshalPretty(bundle.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	add("config.json", cfgJSON, mimeJSON)

	if bundle.Summary != nil {
		summaryJSON, err := marshalPretty(bundle.Summary)
		if err != nil {
			return nil, fmt.Errorf("marshal summary: %w", err)
		}
		add("summary.json", summaryJSON, mimeJSON)
		add("recommendations.csv", RenderRecommendationsCSV(bundle.Summary.Recommendations), mimeCSV)

		outcomes, err := RenderOutcomesJSONL(bundle.Summary.Outcomes)
		if err != nil {
			return nil, err
		}
		add("outcomes.jsonl", outcomes, mimeJSONL)
	}

	for _, plot := range bundle.Plots {
		plotJSON, err := marshalPretty(plot)
		if err != nil {
			return nil, fmt.Errorf("marshal plot %s: %w", plot.ID, err)
		}
		add("plots/"+plot.ID+".json", plotJSON, mimeJSON)
	}

	scriptNames := make([]string, 0, len(bundle.Scripts))
	for name := range bundle.Scripts {
		scriptNames = append(scriptNames, name)
	}
	sort.Strings(scriptNames)
	for _, name := range scriptNames {
		add("scripts/"+name, bundle.Scripts[name], mimeText)
	}

	if len(bundle.Telemetry) > 0 {
		telemetry, err := RenderTelemetryJSONL(bundle.Telemetry)
		if err != nil {
			return nil, err
		}
		add("telemetry.jsonl", telemetry, mimeJSONL)
	}
	if len(bundle.Diagnostics) > 0 {
		diags, err := RenderDiagnosticsJSONL(bundle.Diagnostics)
		if err != nil {
			return nil, err
		}
		add("diagnostics.jsonl", diags, mimeJSONL)
	}

	manifest := domain.ExportManifest{
		RunID:       bundle.Record.RunID,
		GeneratedAt: generatedAt,
		Files:       make([]string, 0, len(files)),
	}
	for _, f := range files {
		manifest.Files = append(manifest.Files, f.Path)
	}

	return &domain.ExportBundle{Manifest: manifest, Files: files}, nil
}

func marshalPretty(v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw) + "\n", nil
}
