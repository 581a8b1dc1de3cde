package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/volteq/flexplan/core/metrics"
	kpi "github.com/volteq/flexplan/core/metrics/kpi"
)

func TestKPISinkAggregatesPublications(t *testing.T) {
	store := kpi.NewMemoryStore()
	reg := prometheus.NewRegistry()
	sink := NewKPISink(store, reg)

	now := time.Now()
	require.NoError(t, sink.RecordPublication(coremetrics.PublicationRecord{
		Portfolio: "pf", PlannedKWh: 10, MaxDeviationKW: 2, Time: now,
	}))
	require.NoError(t, sink.RecordPublication(coremetrics.PublicationRecord{
		Portfolio: "pf", Stale: true, MaxDeviationKW: 0, Time: now,
	}))

	day := kpi.Day(now).Format("2006-01-02")
	require.Equal(t, 10.0, testutil.ToFloat64(sink.planned.WithLabelValues("pf", day)))
	require.Equal(t, 0.5, testutil.ToFloat64(sink.stale.WithLabelValues("pf", day)))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.worstDev.WithLabelValues("pf", day)))

	recs, err := store.Query("pf", now, now)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 2, recs[0].Publications)
}

func TestKPISinkIgnoresRuns(t *testing.T) {
	sink := NewKPISink(kpi.NewMemoryStore(), prometheus.NewRegistry())
	require.NoError(t, sink.RecordRun(coremetrics.RunRecord{Portfolio: "pf"}))
}
