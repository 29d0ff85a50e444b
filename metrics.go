package tenantauth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes an engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricLogoutAll
	MetricAccessVerified
	MetricAccessRejected
	MetricPermissionDenied
	MetricSilentRefreshIssued
	MetricSilentRefreshSkipped
	MetricPasswordRehash
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricStoreError

	// Latency histograms. Every id from here on is a histogram, not a counter.
	MetricVerifyLatency
	MetricLoginLatency
	MetricRefreshLatency
	metricIDCount
)

const (
	firstLatencyMetric = MetricVerifyLatency
	latencyMetricCount = int(metricIDCount - firstLatencyMetric)
	cacheLineSize      = 64
)

// latencyBounds are the inclusive upper bounds of the first seven buckets;
// the eighth collects everything slower. Login and Refresh usually land in
// the upper half because of hashing and store round trips.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

type paddedCounter struct {
	n atomic.Uint64
	_ [cacheLineSize - 8]byte
}

type latencyHistogram [latencyBucketCount]atomic.Uint64

// Metrics holds cache-line padded counters and one histogram per latency
// metric. All methods are safe on a nil *Metrics.
type Metrics struct {
	enabled bool
	latency bool

	counters   [firstLatencyMetric]paddedCounter
	histograms [latencyMetricCount]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy. Histograms is empty unless
// latency histograms are enabled.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters that stay at zero unless cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc bumps a counter. Histogram ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= firstLatencyMetric {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d for a latency metric. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id < firstLatencyMetric || id >= metricIDCount {
		return
	}
	m.histograms[id-firstLatencyMetric][bucketFor(d)].Add(1)
}

// Value returns a counter's current value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= firstLatencyMetric {
		return 0
	}
	return m.counters[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < firstLatencyMetric; id++ {
		s.Counters[id] = m.counters[id].n.Load()
	}
	if !m.latency {
		return s
	}
	for i := range m.histograms {
		buckets := make([]uint64, latencyBucketCount)
		for b := range buckets {
			buckets[b] = m.histograms[i][b].Load()
		}
		s.Histograms[firstLatencyMetric+MetricID(i)] = buckets
	}
	return s
}

func bucketFor(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
