package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonAks/TaskFromTal/internal/telemetry"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	require.NotNil(t, metrics)

	metrics.SyncIterations.WithLabelValues(telemetry.ResultSuccess).Inc()
	metrics.SyncIterations.WithLabelValues(telemetry.ResultFailure).Add(2)
	metrics.SyncRecordsFetched.Add(1000)
	metrics.SyncRecordsInserted.Add(250)
	metrics.AggregationRuns.WithLabelValues(telemetry.ResultSuccess).Inc()

	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.SyncIterations.WithLabelValues(telemetry.ResultSuccess)))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(metrics.SyncIterations.WithLabelValues(telemetry.ResultFailure)))
	assert.Equal(t, float64(1000), testutil.ToFloat64(metrics.SyncRecordsFetched))
	assert.Equal(t, float64(250), testutil.ToFloat64(metrics.SyncRecordsInserted))
}

func TestNewMetrics_RegistersWithRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	metrics.SyncRecordsInserted.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, fam := range families {
		names = append(names, fam.GetName())
	}
	assert.Contains(t, names, "trials_sync_records_inserted_total")
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	telemetry.NewMetrics(reg)

	assert.Panics(t, func() {
		telemetry.NewMetrics(reg)
	})
}
