package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/medauth/medauth"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot medauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() medauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := medauth.MetricsSnapshot{
		Counters: make(map[medauth.MetricID]uint64, len(f.snapshot.Counters)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter(t)
	meter := provider.Meter("medauth-test")

	src := &fakeSource{
		snapshot: medauth.MetricsSnapshot{
			Counters: map[medauth.MetricID]uint64{
				medauth.MetricLoginSuccess: 3,
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "medauth_login_success_total" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("login success counter not collected")
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newTestMeter(t)
	meter := provider.Meter("medauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter(t)
	meter := provider.Meter("medauth-test")

	src := &fakeSource{
		snapshot: medauth.MetricsSnapshot{
			Counters: map[medauth.MetricID]uint64{
				medauth.MetricValidateSuccess: 10,
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}()
	}
	wg.Wait()
}

func TestExporterCloseStopsCollection(t *testing.T) {
	reader, provider := newTestMeter(t)
	meter := provider.Meter("medauth-test")

	exp, err := NewOTelExporterFromSource(meter, &fakeSource{})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Closing twice is harmless.
	if err := exp.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect after Close failed: %v", err)
	}
}
