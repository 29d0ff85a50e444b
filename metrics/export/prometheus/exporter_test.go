package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot tenantauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() tenantauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters:   map[tenantauth.MetricID]uint64{},
			Histograms: map[tenantauth.MetricID][]uint64{},
		},
	})
	assert.Empty(t, exp.Render())
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters: map[tenantauth.MetricID]uint64{
				tenantauth.MetricLoginSuccess:        7,
				tenantauth.MetricSilentRefreshIssued: 2,
			},
			Histograms: map[tenantauth.MetricID][]uint64{
				tenantauth.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE tenantauth_login_success_total counter\n",
		"tenantauth_login_success_total 7\n",
		"tenantauth_silent_refresh_issued_total 2\n",
		"tenantauth_refresh_success_total 0\n",
		`tenantauth_verify_latency_seconds_bucket{le="0.005"} 1` + "\n",
		`tenantauth_verify_latency_seconds_bucket{le="+Inf"} 36` + "\n",
		"tenantauth_verify_latency_seconds_count 36\n",
		"tenantauth_audit_dropped_total 2\n",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters:   map[tenantauth.MetricID]uint64{tenantauth.MetricLogout: 1},
			Histograms: map[tenantauth.MetricID][]uint64{},
		},
	})
	out := exp.Render()
	assert.Contains(t, out, "tenantauth_logout_total 1")
	assert.NotContains(t, out, "latency")
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters: map[tenantauth.MetricID]uint64{tenantauth.MetricLoginFailure: 3},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "tenantauth_login_failure_total 3")
}
