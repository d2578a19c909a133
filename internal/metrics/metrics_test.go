package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/metrics"
)

func TestMetrics_CountersExposed(t *testing.T) {
	m := metrics.New(zap.NewNop())
	m.SessionStarted()
	m.TurnCompleted(2 * time.Second)
	m.TurnRetried("text_service")
	m.ServiceCall("text", errors.New("boom"), time.Second)
	m.ChapterPersisted()
	m.SessionFinished("completed", "")

	expected := `
# HELP storygen_chapters_persisted_total Total number of persisted chapters.
# TYPE storygen_chapters_persisted_total counter
storygen_chapters_persisted_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "storygen_chapters_persisted_total"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `storygen_retries_total{reason="text_service"} 1`)
	assert.Contains(t, body, `storygen_service_calls_total{service="text",status="error"} 1`)
	assert.Contains(t, body, `storygen_sessions_finished_total{reason="",status="completed"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.TurnFailed("malformed_response")
		m.TokensUsed("gpt", 1, 2)
		m.Cleanup()
		assert.NoError(t, m.Push())
	})
}

func TestMetrics_PushWithoutPusher(t *testing.T) {
	m := metrics.New(zap.NewNop())
	assert.Error(t, m.Push())
}

func TestMetrics_InitPusher(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.True(t, strings.HasPrefix(r.URL.Path, "/metrics/job/storygen_worker"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := metrics.New(zap.NewNop())
	require.NoError(t, m.InitPusher(srv.URL))
	require.NoError(t, m.Push())
	assert.Equal(t, 2, hits)
}
