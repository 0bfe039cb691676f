package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/music-miko/t/internal/domain"
	"github.com/music-miko/t/internal/infrastructure"
)

func newTestConfig(t *testing.T) *domain.Config {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.Download.BaseDir = filepath.Join(t.TempDir(), "downloads")
	cfg.Download.HardTimeout = 5 * time.Second
	cfg.JobAPI.BaseURL = "https://api.example.com"
	cfg.JobAPI.APIKey = "secret"
	cfg.JobAPI.Cycles = 2
	cfg.JobAPI.EmptyWait = time.Millisecond
	cfg.JobAPI.NoCandidateWait = time.Millisecond
	cfg.JobAPI.FetchFailWait = time.Millisecond
	cfg.JobAPI.PollAttempts = 3
	cfg.JobAPI.PollInterval = time.Millisecond
	cfg.JobAPI.PollBackoff = 1.1
	cfg.Store.ArchiveOnSuccess = true
	return cfg
}

func mustPayload(t *testing.T, body string) any {
	t.Helper()
	payload, err := infrastructure.DecodePayload([]byte(body))
	require.NoError(t, err)
	return payload
}

type fakeJobAPI struct {
	submits int32
	polls   int32
	submit  func(ctx context.Context, query string) (any, error)
	poll    func(ctx context.Context, n int32) (any, error)
}

func (f *fakeJobAPI) SubmitJob(ctx context.Context, query string, variant domain.Variant) (any, error) {
	atomic.AddInt32(&f.submits, 1)
	return f.submit(ctx, query)
}

func (f *fakeJobAPI) PollJob(ctx context.Context, jobID string) (any, error) {
	n := atomic.AddInt32(&f.polls, 1)
	if f.poll == nil {
		return nil, domain.ErrTransient
	}
	return f.poll(ctx, n)
}

type fakeFetcher struct {
	fetches int32
	delay   time.Duration
	err     error

	mu   sync.Mutex
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) error {
	atomic.AddInt32(&f.fetches, 1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("media"), 0644)
}

func (f *fakeFetcher) lastURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urls) == 0 {
		return ""
	}
	return f.urls[len(f.urls)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	entries  map[string]bool
	recorded []string
	fetches  int32
	flood    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]bool{}}
}

func (s *fakeStore) key(id string, variant domain.Variant) string {
	return string(domain.NewContentKey(variant, id))
}

func (s *fakeStore) HasEntry(ctx context.Context, id string, variant domain.Variant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[s.key(id, variant)], nil
}

func (s *fakeStore) FetchEntry(ctx context.Context, id string, variant domain.Variant, dest string) (string, error) {
	atomic.AddInt32(&s.fetches, 1)
	if s.flood > 0 {
		return "", &domain.FloodWaitError{Wait: s.flood}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}
	return dest, os.WriteFile(dest, []byte("stored"), 0644)
}

func (s *fakeStore) Record(ctx context.Context, id string, variant domain.Variant, srcPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.key(id, variant)] = true
	s.recorded = append(s.recorded, srcPath)
	return nil
}

type fakeLegacy struct {
	calls int32
	dir   string
	err   error
	links []string

	// file name and content written on success; defaults to legacy.{ext}
	name    string
	content string
}

func (l *fakeLegacy) Extract(ctx context.Context, link string, variant domain.Variant) (string, error) {
	atomic.AddInt32(&l.calls, 1)
	l.links = append(l.links, link)
	if l.err != nil {
		return "", l.err
	}
	name, content := l.name, l.content
	if name == "" {
		name = "legacy." + variant.Ext()
	}
	if content == "" {
		content = "legacy"
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, name)
	return path, os.WriteFile(path, []byte(content), 0644)
}

type fakeNotifier struct {
	statuses []int
}

func (n *fakeNotifier) NotifyAuthFailure(status int, bodyPreview string) {
	n.statuses = append(n.statuses, status)
}
