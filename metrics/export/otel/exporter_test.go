package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[tenantauth.MetricID]uint64
	buckets  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() tenantauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tenantauth.MetricsSnapshot{
		Counters:   make(map[tenantauth.MetricID]uint64, len(f.counters)),
		Histograms: map[tenantauth.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.buckets != nil {
		out.Histograms[tenantauth.MetricVerifyLatency] = append([]uint64(nil), f.buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterCollectsSnapshot(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		counters: map[tenantauth.MetricID]uint64{
			tenantauth.MetricLoginSuccess:   3,
			tenantauth.MetricAccessRejected: 5,
		},
		buckets: []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("tenantauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	assert.Equal(t, int64(3), got["tenantauth_login_success_total"])
	assert.Equal(t, int64(5), got["tenantauth_access_rejected_total"])
	assert.Equal(t, int64(1), got["tenantauth_audit_dropped_total"])
	assert.Equal(t, int64(1), got["tenantauth_verify_latency_seconds_bucket_le_0_005"])
	assert.Equal(t, int64(8), got["tenantauth_verify_latency_seconds_bucket_le_inf"])
	assert.Equal(t, int64(8), got["tenantauth_verify_latency_seconds_count"])
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader(t)

	_, err := NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
	_, err = NewExporter(provider.Meter("tenantauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{counters: map[tenantauth.MetricID]uint64{}}

	exp, err := NewExporter(provider.Meter("tenantauth-test"), src)
	require.NoError(t, err)
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[tenantauth.MetricRefreshSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
