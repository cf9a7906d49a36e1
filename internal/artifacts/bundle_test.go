package artifacts

import (
	"strings"
	"testing"

	"indicator-lab/internal/domain"
)

func testBundle(t *testing.T) *domain.RunBundle {
	t.Helper()
	summary := testSummary(t)
	return &domain.RunBundle{
		Record: &domain.RunRecord{
			RunID:     "run_export",
			Status:    domain.StatusCompleted,
			Stage:     domain.StageFinished,
			Progress:  1,
			CreatedAt: 1000,
			UpdatedAt: 2000,
		},
		Config: domain.RunConfig{
			TopNSymbols:   4,
			Timeframes:    []string{"1h", "4h"},
			BudgetMinutes: 30,
			RandomSeed:    1337,
		},
		Summary: summary,
		Plots:   BuildPlots(summary),
		Scripts: BuildScripts(summary),
		Telemetry: []domain.TelemetrySnapshot{
			{Timestamp: 1500, Stage: domain.StageOptimization, WorkingOn: "BTCUSDT 1h"},
		},
		Diagnostics: []domain.RequestDiagnostic{
			{Timestamp: 1400, Endpoint: "/api/v3/klines", Status: 200, Attempt: 1},
		},
	}
}

func TestBuildExportBundle_ManifestMatchesFiles(t *testing.T) {
	export, err := BuildExportBundle(testBundle(t), 3000)
	if err != nil {
		t.Fatalf("BuildExportBundle failed: %v", err)
	}

	if export.Manifest.RunID != "run_export" {
		t.Errorf("unexpected manifest run id: %s", export.Manifest.RunID)
	}
	if export.Manifest.GeneratedAt != 3000 {
		t.Errorf("unexpected generated at: %d", export.Manifest.GeneratedAt)
	}
	if len(export.Manifest.Files) != len(export.Files) {
		t.Fatalf("manifest lists %d files but bundle has %d", len(export.Manifest.Files), len(export.Files))
	}
	for i, f := range export.Files {
		if export.Manifest.Files[i] != f.Path {
			t.Errorf("manifest entry %d is %s, file is %s", i, export.Manifest.Files[i], f.Path)
		}
		if f.Content == "" {
			t.Errorf("file %s is empty", f.Path)
		}
		if f.MimeType == "" {
			t.Errorf("file %s has no mime type", f.Path)
		}
	}
}

func TestBuildExportBundle_ExpectedPaths(t *testing.T) {
	export, err := BuildExportBundle(testBundle(t), 3000)
	if err != nil {
		t.Fatalf("BuildExportBundle failed: %v", err)
	}

	paths := make(map[string]bool)
	for _, f := range export.Files {
		paths[f.Path] = true
	}
	for _, want := range []string{
		"REPORT.md", "run.json", "config.json", "summary.json",
		"recommendations.csv", "outcomes.jsonl",
		"plots/" + domain.PlotIDLeaderboard + ".json",
		"telemetry.jsonl", "diagnostics.jsonl",
	} {
		if !paths[want] {
			t.Errorf("export is missing %s", want)
		}
	}

	foundScript := false
	for p := range paths {
		if strings.HasPrefix(p, "scripts/") && strings.HasSuffix(p, ".pine") {
			foundScript = true
		}
	}
	if !foundScript {
		t.Error("export carries no indicator scripts")
	}
}

func TestBuildExportBundle_WithoutSummary(t *testing.T) {
	bundle := testBundle(t)
	bundle.Summary = nil
	bundle.Plots = nil
	bundle.Scripts = nil

	export, err := BuildExportBundle(bundle, 3000)
	if err != nil {
		t.Fatalf("BuildExportBundle failed: %v", err)
	}
	for _, f := range export.Files {
		if f.Path == "summary.json" || f.Path == "recommendations.csv" {
			t.Errorf("unexpected file %s for a summary-less bundle", f.Path)
		}
	}
}

func TestRenderRecommendationsCSV_QuotesExpressions(t *testing.T) {
	recs := []domain.Recommendation{
		{Symbol: "BTCUSDT", Timeframe: "1h", Expression: "close/sma(close,21)", Horizon: 13},
	}
	out := RenderRecommendationsCSV(recs)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	// The expression embeds a comma and must arrive quoted.
	if !strings.Contains(lines[1], `"close/sma(close,21)"`) {
		t.Errorf("expression not quoted: %s", lines[1])
	}
}

func TestRenderMarkdown_Sections(t *testing.T) {
	doc := RenderMarkdown(testBundle(t))

	for _, want := range []string{
		"# Indicator Lab Report",
		"run_export",
		"## Leaderboard",
		"## Universal Recommendation",
		"## Skipped Pairs",
		"BTCUSDT",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("report is missing %q", want)
		}
	}
}

func TestBuildScripts_TopAndUniversal(t *testing.T) {
	summary := testSummary(t)
	scripts := BuildScripts(summary)

	if _, ok := scripts["universal.pine"]; !ok {
		t.Error("universal script missing")
	}
	if _, ok := scripts["btcusdt_1h.pine"]; !ok {
		t.Error("top outcome script missing")
	}
	for name, content := range scripts {
		if !strings.HasPrefix(content, "//@version=5") {
			t.Errorf("script %s missing version header", name)
		}
		if !strings.Contains(content, "plot(") {
			t.Errorf("script %s has no plot call", name)
		}
	}
}
