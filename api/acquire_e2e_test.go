package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/music-miko/t/internal/app"
	"github.com/music-miko/t/internal/domain"
	"github.com/music-miko/t/internal/infrastructure"
	"github.com/music-miko/t/pkg/logger"
)

const e2eID = "dQw4w9WgXcQ"

type upstream struct {
	*httptest.Server
	submits atomic.Int32
	polls   atomic.Int32
	status  int
}

// newUpstream fakes a job API that answers "queued", then "processing",
// then a relative locator served by the same host.
func newUpstream(t *testing.T, status int) *upstream {
	t.Helper()
	u := &upstream{status: status}

	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		u.submits.Add(1)
		if u.status != 0 {
			http.Error(w, "invalid api key", u.status)
			return
		}
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Equal(t, e2eID, r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"job_id":"job-1","status":"queued"}`))
	})
	mux.HandleFunc("/jobStatus", func(w http.ResponseWriter, r *http.Request) {
		if u.polls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"job":{"id":"job-1","status":"processing"},"public_url":"processing in background"}`))
			return
		}
		_, _ = w.Write([]byte(`{"job":{"id":"job-1","status":"done"},"result":{"public_url":"/files/dQw4w9WgXcQ.m4a"}}`))
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	})

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func e2eConfig(t *testing.T, baseURL string) *domain.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := domain.DefaultConfig()
	cfg.Download.BaseDir = filepath.Join(dir, "downloads")
	cfg.Download.LogsDir = filepath.Join(dir, "logs")
	cfg.Download.HardTimeout = 10 * time.Second
	cfg.JobAPI.BaseURL = baseURL
	cfg.JobAPI.APIKey = "secret"
	cfg.JobAPI.HTTPRetries = 1
	cfg.JobAPI.Cycles = 1
	cfg.JobAPI.PollAttempts = 5
	cfg.JobAPI.PollInterval = 10 * time.Millisecond
	cfg.JobAPI.PollBackoff = 1
	cfg.CDN.Retries = 1
	cfg.CDN.RetryDelay = 10 * time.Millisecond
	cfg.Store.DatabasePath = filepath.Join(dir, "store.db")
	cfg.Store.ArchiveDir = filepath.Join(dir, "archive")
	cfg.Store.TransferInterval = 0
	cfg.Legacy.Enabled = false
	return cfg
}

func setupE2E(t *testing.T, cfg *domain.Config) (http.Handler, *app.AcquisitionPipeline) {
	t.Helper()

	events, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: cfg.Download.LogsDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	store, err := infrastructure.NewSQLiteContentStore(&cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pipeline := app.NewAcquisitionPipeline(cfg, app.PipelineDeps{
		JobAPI:     infrastructure.NewJobAPIClient(&cfg.JobAPI, zap.NewNop()),
		Normalizer: infrastructure.NewLocatorNormalizer(cfg.JobAPI.BaseURL, cfg.JobAPI.InternalPathPrefixes),
		Fetcher:    infrastructure.NewCDNFetcher(&cfg.CDN, zap.NewNop()),
		Store:      store,
		Notifier:   infrastructure.NewNotificationService(&cfg.Notification, zap.NewNop()),
		Events:     events,
	})

	return SetupRouter(pipeline, nil, zap.NewNop(), events, cfg.Download.LogsDir), pipeline
}

func TestE2E_JobAPIThenStore(t *testing.T) {
	up := newUpstream(t, 0)
	cfg := e2eConfig(t, up.URL)
	router, pipeline := setupE2E(t, cfg)

	w := doJSON(t, router, http.MethodPost, "/api/v1/acquire", map[string]any{"link": "https://youtu.be/" + e2eID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"tier":"job_api"`)

	dest := cfg.Download.OutputPath(domain.VariantAudio, e2eID)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
	assert.Equal(t, int32(2), up.polls.Load())

	// served from the archive once the download dir is cleared
	require.NoError(t, os.Remove(dest))
	w = doJSON(t, router, http.MethodPost, "/api/v1/acquire", map[string]any{"link": e2eID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"tier":"store"`)
	assert.Equal(t, int32(1), up.submits.Load())

	// then from the local cache
	w = doJSON(t, router, http.MethodPost, "/api/v1/acquire", map[string]any{"link": e2eID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tier":"cache"`)

	stats := pipeline.Stats()
	assert.Equal(t, int64(3), stats.Get(app.CounterTotal))
	assert.Equal(t, int64(1), stats.Get(app.CounterAPISuccess))
	assert.Equal(t, int64(1), stats.Get(app.CounterStoreHit))
	assert.Equal(t, int64(1), stats.Get(app.CounterCacheHit))

	w = doJSON(t, router, http.MethodGet, "/api/v1/events/acquire?limit=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acquire_completed")
}

func TestE2E_AuthFailureIsOpaque(t *testing.T) {
	up := newUpstream(t, http.StatusUnauthorized)
	cfg := e2eConfig(t, up.URL)
	router, pipeline := setupE2E(t, cfg)

	w := doJSON(t, router, http.MethodPost, "/api/v1/acquire", map[string]any{"link": e2eID})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "invalid api key")
	assert.Equal(t, int32(1), up.submits.Load())
	assert.Equal(t, int64(1), pipeline.Stats().Get(app.CounterAuthFailure))

	w = doJSON(t, router, http.MethodGet, "/api/v1/events/error", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rejected credentials")
}
