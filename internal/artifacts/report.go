package artifacts

import (
	"fmt"
	"strings"
	"time"

	"indicator-lab/internal/domain"
)

// RenderMarkdown renders the run report as a Markdown string.
func RenderMarkdown(bundle *domain.RunBundle) string {
	var sb strings.Builder
	rec := bundle.Record
	cfg := bundle.Config

	// Header
	sb.WriteString("# Indicator Lab Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", rec.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.UnixMilli(rec.UpdatedAt).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Status: %s | Stage: %s\n\n", rec.Status, rec.Stage))
	if rec.Error != "" {
		sb.WriteString(fmt.Sprintf("Error: %s\n\n", rec.Error))
	}

	// Configuration
	sb.WriteString("## Configuration\n\n")
	sb.WriteString("| Setting | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Top N Symbols | %d |\n", cfg.TopNSymbols))
	sb.WriteString(fmt.Sprintf("| Timeframes | %s |\n", strings.Join(cfg.Timeframes, ", ")))
	sb.WriteString(fmt.Sprintf("| Budget (minutes) | %d |\n", cfg.BudgetMinutes))
	sb.WriteString(fmt.Sprintf("| Random Seed | %d |\n", cfg.RandomSeed))
	sb.WriteString("\n")

	summary := bundle.Summary
	if summary == nil {
		sb.WriteString("No results available.\n")
		return sb.String()
	}

	// Leaderboard
	sb.WriteString("## Leaderboard\n\n")
	if len(summary.Recommendations) > 0 {
		sb.WriteString("| Symbol | Timeframe | Expression | Horizon | CompositeError | HitRate | PnL | MaxDD |\n")
		sb.WriteString("|--------|-----------|------------|---------|----------------|---------|-----|-------|\n")
		for _, r := range summary.Recommendations {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %.4f | %.4f | %.4f | %.4f |\n",
				r.Symbol, r.Timeframe, r.Expression, r.Horizon,
				r.CompositeError, r.HitRate, r.PnL, r.MaxDrawdown))
		}
	} else {
		sb.WriteString("No recommendations available.\n")
	}
	sb.WriteString("\n")

	// Universal recommendation
	sb.WriteString("## Universal Recommendation\n\n")
	if u := summary.Universal; u != nil {
		sb.WriteString(fmt.Sprintf("**%s**\n\n", u.Expression))
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Mean Composite Error | %.4f |\n", u.MeanCompositeErr))
		sb.WriteString(fmt.Sprintf("| Mean Hit Rate | %.4f |\n", u.MeanHitRate))
		sb.WriteString(fmt.Sprintf("| Mean PnL | %.4f |\n", u.MeanPnL))
		sb.WriteString(fmt.Sprintf("| Score | %.4f |\n", u.Score))
		sb.WriteString(fmt.Sprintf("| Outcomes Considered | %d |\n", u.OutcomesConsidered))
		sb.WriteString(fmt.Sprintf("| Symbols | %s |\n", strings.Join(u.Symbols, ", ")))
	} else {
		sb.WriteString("No universal recommendation available.\n")
	}
	sb.WriteString("\n")

	// Skipped pairs
	sb.WriteString("## Skipped Pairs\n\n")
	if len(summary.SkippedPairs) > 0 {
		sb.WriteString("| Symbol | Timeframe | Reason |\n")
		sb.WriteString("|--------|-----------|--------|\n")
		for _, s := range summary.SkippedPairs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", s.Symbol, s.Timeframe, s.Reason))
		}
	} else {
		sb.WriteString("No pairs were skipped.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
