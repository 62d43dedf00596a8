// Package dashboard renders the HTML chart dashboard over the statistics
// tables.
package dashboard

import (
	"context"
	"html/template"
	"net/http"
	"strconv"

	"github.com/AntonAks/TaskFromTal/internal/logger"
	"github.com/AntonAks/TaskFromTal/internal/store"
)

const (
	// defaultTopN is the number of organizations charted when ?top is absent
	defaultTopN = 10

	// maxTopN caps the ?top parameter
	maxTopN = 100
)

// StatsReader is the analytics store surface the dashboard needs
type StatsReader interface {
	ListOrganizationStats(ctx context.Context, filter store.StatsFilter) ([]store.OrganizationStats, error)
	ListOrganizationTypeStats(ctx context.Context, filter store.StatsFilter) ([]store.OrganizationTypeStats, error)
}

// Handler serves the chart dashboard
type Handler struct {
	stats StatsReader
	tmpl  *template.Template
}

// NewHandler creates a dashboard handler backed by the given stats reader
func NewHandler(stats StatsReader) *Handler {
	return &Handler{
		stats: stats,
		tmpl:  template.Must(template.New("dashboard").Parse(dashboardTemplate)),
	}
}

type chartData struct {
	TopN      int
	OrgNames  []string
	OrgCounts []int64

	TypeNames     []string
	TypeStudies   []int64
	TypeOrgCounts []int64
}

// ServeHTTP renders the dashboard. ?top=N controls how many organizations
// the first chart shows.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topN := defaultTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			topN = min(parsed, maxTopN)
		}
	}

	orgStats, err := h.stats.ListOrganizationStats(r.Context(), store.StatsFilter{Limit: topN})
	if err != nil {
		logger.Errorf("Failed to load organization statistics for dashboard: %v", err)
		http.Error(w, "failed to load statistics", http.StatusInternalServerError)
		return
	}

	typeStats, err := h.stats.ListOrganizationTypeStats(r.Context(), store.StatsFilter{Limit: store.MaxListLimit})
	if err != nil {
		logger.Errorf("Failed to load organization type statistics for dashboard: %v", err)
		http.Error(w, "failed to load statistics", http.StatusInternalServerError)
		return
	}

	data := chartData{TopN: topN}
	for _, stat := range orgStats {
		data.OrgNames = append(data.OrgNames, stat.OrganizationName)
		data.OrgCounts = append(data.OrgCounts, stat.Quantity)
	}
	for _, stat := range typeStats {
		data.TypeNames = append(data.TypeNames, stat.OrganizationType)
		data.TypeStudies = append(data.TypeStudies, stat.QuantityStudies)
		data.TypeOrgCounts = append(data.TypeOrgCounts, stat.QuantityOrganizations)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		logger.Errorf("Failed to render dashboard: %v", err)
	}
}

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Clinical Trials Statistics</title>
  <script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
  <style>
    body { font-family: sans-serif; margin: 2rem; }
    .chart { max-width: 960px; margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Clinical Trials Statistics</h1>
  <div id="studies-by-org" class="chart"></div>
  <div id="studies-by-type" class="chart"></div>
  <div id="orgs-by-type" class="chart"></div>
  <script>
    Plotly.newPlot("studies-by-org", [{
      type: "bar",
      x: {{.OrgNames}},
      y: {{.OrgCounts}}
    }], {title: {text: "Studies per organization (top {{.TopN}})"}});

    Plotly.newPlot("studies-by-type", [{
      type: "pie",
      labels: {{.TypeNames}},
      values: {{.TypeStudies}}
    }], {title: {text: "Studies per organization type"}});

    Plotly.newPlot("orgs-by-type", [{
      type: "bar",
      x: {{.TypeNames}},
      y: {{.TypeOrgCounts}}
    }], {title: {text: "Distinct organizations per type"}});
  </script>
</body>
</html>
`
