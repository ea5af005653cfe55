package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/analyzr/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := telemetry.New()

	m.JobCreated()
	m.JobCreated()
	m.JobStarted()
	m.JobStarted()
	m.JobFinished()
	m.JobCompleted()
	m.JobFailed("ANALYZER_TIMEOUT")
	m.RateLimitRejected()
	m.RateLimitFailedOpen()
	m.NotificationFailed("analysis.failed", 3)
	m.NotificationFailed("analysis.failed", 0)
	m.ConnectionOpened()

	body := scrape(t, m)
	assert.Contains(t, body, "analyzr_jobs_created_total 2")
	assert.Contains(t, body, "analyzr_jobs_inflight 1")
	assert.Contains(t, body, "analyzr_jobs_completed_total 1")
	assert.Contains(t, body, `analyzr_jobs_failed_total{code="ANALYZER_TIMEOUT"} 1`)
	assert.Contains(t, body, "analyzr_rate_limit_rejects_total 1")
	assert.Contains(t, body, "analyzr_rate_limit_degraded_total 1")
	assert.Contains(t, body, `analyzr_notification_failures_total{type="analysis.failed"} 3`)
	assert.Contains(t, body, "analyzr_realtime_connections 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := telemetry.New(), telemetry.New()
	a.JobCreated()

	assert.Contains(t, scrape(t, a), "analyzr_jobs_created_total 1")
	assert.Contains(t, scrape(t, b), "analyzr_jobs_created_total 0")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.JobCreated()
		m.JobStarted()
		m.JobFinished()
		m.JobCompleted()
		m.JobFailed("PANIC")
		m.RateLimitRejected()
		m.RateLimitFailedOpen()
		m.NotificationFailed("analysis.completed", 1)
		m.ConnectionOpened()
		m.ConnectionClosed()
	})
}
