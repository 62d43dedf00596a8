package dashboard_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonAks/TaskFromTal/internal/dashboard"
	"github.com/AntonAks/TaskFromTal/internal/store"
)

type fakeStats struct {
	orgStats   []store.OrganizationStats
	typeStats  []store.OrganizationTypeStats
	err        error
	lastFilter store.StatsFilter
}

func (f *fakeStats) ListOrganizationStats(_ context.Context, filter store.StatsFilter) ([]store.OrganizationStats, error) {
	f.lastFilter = filter
	return f.orgStats, f.err
}

func (f *fakeStats) ListOrganizationTypeStats(context.Context, store.StatsFilter) ([]store.OrganizationTypeStats, error) {
	return f.typeStats, f.err
}

func TestHandler_RendersCharts(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{
		orgStats: []store.OrganizationStats{
			{OrganizationName: "Acme Health", Quantity: 10},
		},
		typeStats: []store.OrganizationTypeStats{
			{OrganizationType: "INDUSTRY", QuantityStudies: 10, QuantityOrganizations: 1},
		},
	}
	handler := dashboard.NewHandler(stats)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Acme Health")
	assert.Contains(t, body, "INDUSTRY")
	assert.Contains(t, body, "plotly")
}

func TestHandler_TopParameter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		query     string
		wantLimit int
	}{
		{name: "default", query: "", wantLimit: 10},
		{name: "custom", query: "?top=25", wantLimit: 25},
		{name: "capped", query: "?top=5000", wantLimit: 100},
		{name: "garbage falls back", query: "?top=banana", wantLimit: 10},
		{name: "non-positive falls back", query: "?top=0", wantLimit: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stats := &fakeStats{}
			handler := dashboard.NewHandler(stats)

			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantLimit, stats.lastFilter.Limit)
		})
	}
}

func TestHandler_StatsFailure(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{err: errors.New("database unavailable")}
	handler := dashboard.NewHandler(stats)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
