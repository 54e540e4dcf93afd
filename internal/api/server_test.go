package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bilimath/crawler/internal/crawler"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

type stubProgress struct {
	snapshot crawler.Progress
}

func (p *stubProgress) Snapshot() crawler.Progress { return p.snapshot }

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := NewServer(nil, nil, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := NewServer(&stubPinger{}, nil, zap.NewNop())
		rec := doRequest(t, srv, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("database down", func(t *testing.T) {
		srv := NewServer(&stubPinger{err: errors.New("dial refused")}, nil, zap.NewNop())
		rec := doRequest(t, srv, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body["error"], "database")
	})

	t.Run("no pinger configured", func(t *testing.T) {
		srv := NewServer(nil, nil, zap.NewNop())
		rec := doRequest(t, srv, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetRun(t *testing.T) {
	progress := &stubProgress{snapshot: crawler.Progress{
		RunID:            "run-123",
		JobsTotal:        10,
		JobsDone:         4,
		PagesFetched:     37,
		RecordsCommitted: 820,
	}}
	srv := NewServer(nil, progress, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/v1/run")

	require.Equal(t, http.StatusOK, rec.Code)
	var got crawler.Progress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "run-123", got.RunID)
	assert.Equal(t, 4, got.JobsDone)
	assert.Equal(t, int64(820), got.RecordsCommitted)
}

func TestGetRunNoScheduler(t *testing.T) {
	srv := NewServer(nil, nil, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/v1/run")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(nil, nil, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "# HELP"))
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(nil, nil, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
