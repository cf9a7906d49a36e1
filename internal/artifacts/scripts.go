package artifacts

import (
	"fmt"
	"strings"

	"indicator-lab/internal/domain"
)

// scriptCount bounds how many per-asset scripts the export carries.
const scriptCount = 5

// BuildScripts renders exportable indicator scripts for the top outcomes and
// the universal recommendation, keyed by filename.
func BuildScripts(summary *domain.ResultSummary) map[string]string {
	scripts := make(map[string]string)

	for i, rec := range summary.Recommendations {
		if i == scriptCount {
			break
		}
		name := fmt.Sprintf("%s_%s.pine", strings.ToLower(rec.Symbol), rec.Timeframe)
		title := fmt.Sprintf("%s %s: %s", rec.Symbol, rec.Timeframe, rec.Expression)
		scripts[name] = renderPine(title, rec.Formula, rec.Horizon)
	}

	if u := summary.Universal; u != nil {
		scripts["universal.pine"] = renderPine("Universal: "+u.Expression, u.Formula, 0)
	}

	return scripts
}

// renderPine wraps one formula fragment in a minimal indicator script.
func renderPine(title, formula string, horizon int) string {
	var sb strings.Builder
	sb.WriteString("//@version=5\n")
	sb.WriteString(fmt.Sprintf("indicator(%q, overlay=false)\n", title))
	if horizon > 0 {
		sb.WriteString(fmt.Sprintf("// forecast horizon: %d bars\n", horizon))
	}
	sb.WriteString(fmt.Sprintf("feature = %s\n", formula))
	sb.WriteString("plot(feature, title=\"feature\")\n")
	sb.WriteString("hline(0)\n")
	return sb.String()
}
