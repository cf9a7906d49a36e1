package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"indicator-lab/internal/domain"
)

// RenderRecommendationsCSV renders the leaderboard as CSV. Expressions embed
// commas, so fields go through a real CSV writer rather than string joins.
func RenderRecommendationsCSV(recs []domain.Recommendation) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write([]string{
		"symbol", "timeframe", "expression", "horizon",
		"composite_error", "hit_rate", "pnl", "max_drawdown", "complexity",
	})
	for _, r := range recs {
		w.Write([]string{
			r.Symbol,
			r.Timeframe,
			r.Expression,
			fmt.Sprintf("%d", r.Horizon),
			fmt.Sprintf("%.6f", r.CompositeError),
			fmt.Sprintf("%.6f", r.HitRate),
			fmt.Sprintf("%.6f", r.PnL),
			fmt.Sprintf("%.6f", r.MaxDrawdown),
			fmt.Sprintf("%d", r.Complexity),
		})
	}
	w.Flush()
	return sb.String()
}

// RenderOutcomesJSONL renders one outcome per line. Feature vectors are
// already excluded from outcome serialization.
func RenderOutcomesJSONL(outcomes []domain.Outcome) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	for i := range outcomes {
		if err := enc.Encode(&outcomes[i]); err != nil {
			return "", fmt.Errorf("encode outcome %d: %w", i, err)
		}
	}
	return sb.String(), nil
}

// RenderTelemetryJSONL renders one telemetry snapshot per line.
func RenderTelemetryJSONL(snaps []domain.TelemetrySnapshot) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	for i := range snaps {
		if err := enc.Encode(&snaps[i]); err != nil {
			return "", fmt.Errorf("encode snapshot %d: %w", i, err)
		}
	}
	return sb.String(), nil
}

// RenderDiagnosticsJSONL renders one request diagnostic per line.
func RenderDiagnosticsJSONL(diags []domain.RequestDiagnostic) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	for i := range diags {
		if err := enc.Encode(&diags[i]); err != nil {
			return "", fmt.Errorf("encode diagnostic %d: %w", i, err)
		}
	}
	return sb.String(), nil
}
