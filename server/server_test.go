package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/metrics"
	"auto_linkedin_poster/model"
	"auto_linkedin_poster/publisher"
	"auto_linkedin_poster/settings"
	"auto_linkedin_poster/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubGenerator struct{ store *store.Store }

func (g stubGenerator) Generate(ctx context.Context, ids []int64) (model.Post, error) {
	if len(ids) == 0 {
		return model.Post{}, model.Errorf(model.KindValidation, "topic_ids must not be empty")
	}
	_, missing, err := g.store.GetTopics(ids)
	if err != nil {
		return model.Post{}, err
	}
	if len(missing) > 0 {
		return model.Post{}, model.Errorf(model.KindInvalidTopics, "unknown topic ids %v", missing)
	}
	return g.store.CreatePost(model.NewPost("generated", ids, nil, model.TriggerManual, time.Now()))
}

type stubScheduler struct {
	settings *settings.Service
	fetching bool
}

func (s *stubScheduler) FetchNow(ctx context.Context) error {
	if s.fetching {
		return model.Errorf(model.KindAlreadyRunning, "fetch is already running")
	}
	s.fetching = true
	return nil
}

func (s *stubScheduler) GenerateNow(ctx context.Context) error { return nil }

func (s *stubScheduler) Pause() (model.Settings, error) { return s.settings.SetPaused(true) }

func (s *stubScheduler) Resume() (model.Settings, error) { return s.settings.SetPaused(false) }

type okPlatform struct{}

func (okPlatform) Configured() bool { return true }

func (okPlatform) Post(ctx context.Context, text string) (string, error) {
	return "urn:li:share:7", nil
}

type fixture struct {
	store   *store.Store
	metrics *metrics.Metrics
	router  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	journal := logging.NewJournal(st, logging.Discard())
	creds := config.StaticCredentials{Reddit: true, LinkedIn: true}
	svc, err := settings.New(st, creds, journal)
	require.NoError(t, err)

	m := metrics.New()
	srv := New(Deps{
		Store:     st,
		Settings:  svc,
		Generator: stubGenerator{store: st},
		Publisher: publisher.New(okPlatform{}, st, publisher.Options{Journal: journal}),
		Scheduler: &stubScheduler{settings: svc},
		Metrics:   m,
	}, Options{CORSOrigins: []string{"http://localhost:5173"}, MaxPostLength: 50, Journal: journal})
	return &fixture{store: st, metrics: m, router: srv.Routes()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestStatusAndSettings(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st model.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.SchedulerRunning)
	assert.True(t, st.RedditConfigured)
	assert.False(t, st.XConfigured)
	assert.True(t, st.LinkedInConfigured)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(t, http.MethodPut, "/api/settings", map[string]any{"post_interval": 1800})
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1800, got.PostInterval)
	assert.Equal(t, 43200, got.FetchInterval)

	w = f.do(t, http.MethodPut, "/api/settings", map[string]any{"post_interval": 600, "fetch_interval": 10})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation", decodeError(t, w).Error)

	w = f.do(t, http.MethodGet, "/api/settings", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1800, got.PostInterval, "rejected update must not apply partially")
}

func TestGeneratePostErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/posts/generate", map[string]any{"topic_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation", decodeError(t, w).Error)

	w = f.do(t, http.MethodPost, "/api/posts/generate", map[string]any{"topic_ids": []int64{999}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidTopics", decodeError(t, w).Error)
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	p, err := f.store.CreatePost(model.NewPost("draft", []int64{1}, nil, model.TriggerManual, time.Now()))
	require.NoError(t, err)
	path := "/api/posts/" + strconv.FormatInt(p.ID, 10)

	w := f.do(t, http.MethodPut, path, map[string]any{"content": strings.Repeat("x", 51)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, path, map[string]any{"content": "edited text"})
	require.Equal(t, http.StatusOK, w.Code)
	var edited model.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &edited))
	assert.Equal(t, model.StatusEdited, edited.Status)

	w = f.do(t, http.MethodPost, path+"/publish", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPut, path, map[string]any{"content": "too late"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Immutable", decodeError(t, w).Error)

	w = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/posts?status=posted", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var posts []model.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "urn:li:share:7", posts[0].PlatformPostID)

	w = f.do(t, http.MethodDelete, "/api/posts/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteQueuedPost(t *testing.T) {
	f := newFixture(t)
	p, err := f.store.CreatePost(model.NewPost("bye", []int64{1}, nil, model.TriggerManual, time.Now()))
	require.NoError(t, err)

	w := f.do(t, http.MethodDelete, "/api/posts/"+strconv.FormatInt(p.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err = f.store.GetPost(p.ID)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestActionsAndScheduler(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/fetch-now", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":true,"action":"fetch"}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/fetch-now", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyRunning", decodeError(t, w).Error)

	w = f.do(t, http.MethodPost, "/api/generate-now", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(t, http.MethodPost, "/api/scheduler/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheduler_running":false`)

	w = f.do(t, http.MethodPost, "/api/scheduler/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheduler_running":true`)
}

func TestListEndpointsValidateQuery(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/topics?limit=0", "/api/topics?source=myspace", "/api/posts?status=gone", "/api/logs?limit=abc"} {
		w := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w := f.do(t, http.MethodGet, "/api/topics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = f.do(t, http.MethodGet, "/api/logs?component=settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCORSAndMetrics(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `curator_http_requests_total{code="2xx",method="GET",route="/api/status"} 1`)
}
