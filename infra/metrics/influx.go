package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/infra/logger"
)

// InfluxSink writes planning events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes the finished run as a line protocol event.
func (s *InfluxSink) RecordRun(rec coremetrics.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("plan_run").
		AddTag("portfolio", rec.Portfolio).
		AddTag("status", rec.Status.String()).
		AddTag("solver", rec.Solver).
		AddTag("trigger", rec.Trigger.String()).
		AddTag("relaxed", strconv.FormatBool(rec.Relaxed)).
		AddTag("run_id", rec.RunID).
		AddTag("component", "replan_controller").
		AddField("objective", round3(rec.Objective)).
		AddField("duration_ms", round3(float64(rec.Duration.Milliseconds()))).
		AddField("periods", rec.Periods).
		AddField("assets", rec.Assets).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPublication writes a schedule emission.
func (s *InfluxSink) RecordPublication(rec coremetrics.PublicationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_published").
		AddTag("portfolio", rec.Portfolio).
		AddTag("schedule_id", rec.ScheduleID).
		AddTag("stale", strconv.FormatBool(rec.Stale)).
		AddTag("component", "replan_controller").
		AddField("seq", int64(rec.Seq)).
		AddField("max_deviation_kw", round3(rec.MaxDeviationKW)).
		AddField("planned_kwh", round3(rec.PlannedKWh)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTrigger writes an accepted trigger.
func (s *InfluxSink) RecordTrigger(rec coremetrics.TriggerRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("plan_trigger").
		AddTag("portfolio", rec.Portfolio).
		AddTag("kind", rec.Kind.String()).
		AddTag("component", "replan_controller").
		AddField("coalesced", rec.Coalesced).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFallback writes a degradation decision.
func (s *InfluxSink) RecordFallback(rec coremetrics.FallbackRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("plan_fallback").
		AddTag("portfolio", rec.Portfolio).
		AddTag("relaxed", strconv.FormatBool(rec.Relaxed)).
		AddTag("component", "replan_controller")
	if rec.RunID != "" {
		p = p.AddTag("run_id", rec.RunID)
	}
	p = p.AddField("reason", rec.Reason).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
