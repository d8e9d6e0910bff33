package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.TopicsFetched("reddit", 3)
	m.SourceError("x")
	m.RankingPass(time.Second, 2)
	m.LLMCall(time.Second, errors.New("boom"))
	m.Publish("manual", "posted")
	m.ActionRun("fetch", nil)
	m.ActionSkipped("post", "paused")
	m.HTTPRequest("GET", "/api/status", 200, time.Millisecond)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.TopicsFetched("reddit", 3)
	m.TopicsFetched("reddit", 0)
	m.Publish("auto", "posted")
	m.Publish("auto", "posted")
	m.ActionRun("fetch", errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.topicsFetched.WithLabelValues("reddit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.publishes.WithLabelValues("auto", "posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionRuns.WithLabelValues("fetch", "error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.HTTPRequest("GET", "/api/status", 404, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `curator_http_requests_total{code="4xx",method="GET",route="/api/status"} 1`)
}
