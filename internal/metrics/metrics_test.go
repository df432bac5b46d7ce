package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	m.RecordPass(ctx, "new-turn")
	m.RecordPass(ctx, "new-turn")
	m.RecordDispatch(ctx, "dispatched")
	m.RecordTranslate(ctx, 0.25, true)
	m.RecordSinkError(ctx, "audio")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if s, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	if sums["capwatch.pipeline.passes"] != 2 {
		t.Errorf("passes: got %d, want 2", sums["capwatch.pipeline.passes"])
	}
	if sums["capwatch.pipeline.dispatches"] != 1 {
		t.Errorf("dispatches: got %d, want 1", sums["capwatch.pipeline.dispatches"])
	}
	if sums["capwatch.translate.errors"] != 1 {
		t.Errorf("translate errors: got %d, want 1", sums["capwatch.translate.errors"])
	}
}

func TestDefault_Singleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default returned different instances")
	}
}
