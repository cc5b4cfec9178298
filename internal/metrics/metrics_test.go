package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()

	m.Sweeps.WithLabelValues(OutcomeCompleted).Inc()
	m.Sweeps.WithLabelValues(OutcomeCompleted).Inc()
	m.Notifications.WithLabelValues("sent").Add(3)
	m.MonitoredWallets.Set(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sweeps.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Notifications.WithLabelValues("sent")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wallet_watch_sweeps_total{outcome="completed"} 2`)
	assert.Contains(t, string(body), "wallet_watch_monitored_wallets 12")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.WalletsProcessed.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.WalletsProcessed))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.WalletsProcessed))
}
