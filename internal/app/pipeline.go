package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/music-miko/t/internal/domain"
	"github.com/music-miko/t/internal/infrastructure"
	"github.com/music-miko/t/pkg/logger"
)

// JobAPI submits upstream download jobs and polls them
type JobAPI interface {
	SubmitJob(ctx context.Context, query string, variant domain.Variant) (any, error)
	PollJob(ctx context.Context, jobID string) (any, error)
}

// MediaFetcher streams a normalized locator to a local path
type MediaFetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// OperatorNotifier raises alerts that need a human
type OperatorNotifier interface {
	NotifyAuthFailure(status int, bodyPreview string)
}

// PipelineDeps are the collaborators of an AcquisitionPipeline. Store,
// Legacy and Notifier may be nil to disable the corresponding feature.
type PipelineDeps struct {
	JobAPI     JobAPI
	Normalizer *infrastructure.LocatorNormalizer
	Fetcher    MediaFetcher
	Store      domain.ContentStore
	Legacy     domain.LegacyExtractor
	Notifier   OperatorNotifier
	Stats      *Stats
	Logger     *zap.Logger
	Events     *logger.MultiLogger
}

// AcquisitionPipeline resolves a link or query into a local file through
// the cache, content store, job API and legacy tiers, in that order
type AcquisitionPipeline struct {
	config     *domain.Config
	jobAPI     JobAPI
	normalizer *infrastructure.LocatorNormalizer
	fetcher    MediaFetcher
	store      domain.ContentStore
	legacy     domain.LegacyExtractor
	notifier   OperatorNotifier
	stats      *Stats
	flight     *Coordinator
	logger     *zap.Logger
	events     *logger.MultiLogger

	// unix nanos before which the store tier is skipped
	storeCooldownUntil atomic.Int64

	now      func() time.Time
	newToken func() string
}

// NewAcquisitionPipeline creates a pipeline
func NewAcquisitionPipeline(config *domain.Config, deps PipelineDeps) *AcquisitionPipeline {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	stats := deps.Stats
	if stats == nil {
		stats = NewStats()
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = infrastructure.NewLocatorNormalizer(config.JobAPI.BaseURL, config.JobAPI.InternalPathPrefixes)
	}

	return &AcquisitionPipeline{
		config:     config,
		jobAPI:     deps.JobAPI,
		normalizer: normalizer,
		fetcher:    deps.Fetcher,
		store:      deps.Store,
		legacy:     deps.Legacy,
		notifier:   deps.Notifier,
		stats:      stats,
		flight:     NewCoordinator(),
		logger:     log,
		events:     deps.Events,
		now:        time.Now,
		newToken:   fallbackToken,
	}
}

// fallbackToken names files for queries that resolve to no identifier
func fallbackToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

// Stats returns the pipeline's counters
func (p *AcquisitionPipeline) Stats() *Stats {
	return p.stats
}

// Resolve classifies a link without any side effects
func (p *AcquisitionPipeline) Resolve(link string, variant domain.Variant) domain.Resolution {
	return domain.Resolve(link, variant)
}

// Acquire returns a local file for link, bounded by the configured hard
// timeout. Concurrent calls for the same key share one execution. The
// returned result always carries the key and, on failure, the reason.
func (p *AcquisitionPipeline) Acquire(ctx context.Context, link string, variant domain.Variant) (*domain.AcquisitionResult, error) {
	p.stats.Inc(CounterTotal)

	res := domain.Resolve(link, variant)
	if !res.Safe {
		p.stats.Inc(CounterUnsafeRejected)
		p.stats.Inc(CounterFailed)
		p.events.LogAcquireEvent("acquire_rejected", zap.String("reason", string(domain.ReasonUnsafe)))
		return &domain.AcquisitionResult{Key: res.Key, Reason: domain.ReasonUnsafe}, domain.ErrUnsafeReference
	}

	hardTimeout := p.config.Download.HardTimeout
	callCtx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	start := p.now()
	p.events.LogAcquireEvent("acquire_started",
		zap.String("key", string(res.Key)),
		zap.String("identifier", res.Identifier))

	result, joined, err := p.flight.Do(callCtx, context.WithoutCancel(ctx), res.Key, func(opCtx context.Context) (*domain.AcquisitionResult, error) {
		opCtx, opCancel := context.WithTimeout(opCtx, hardTimeout)
		defer opCancel()
		return p.execute(opCtx, res, variant)
	})
	if joined {
		p.stats.Inc(CounterCoalesced)
	}

	elapsed := zap.Duration("elapsed", p.now().Sub(start))
	if err == nil {
		p.stats.Inc(CounterSuccess)
		p.events.LogAcquireEvent("acquire_completed",
			zap.String("key", string(res.Key)),
			zap.String("tier", string(result.Tier)),
			zap.String("path", result.FilePath),
			zap.Bool("joined", joined),
			elapsed)
		return result, nil
	}

	if result == nil {
		result = &domain.AcquisitionResult{Key: res.Key, Shared: joined}
	}

	p.stats.Inc(CounterFailed)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		p.stats.Inc(CounterTimeout)
		result.Reason = domain.ReasonTimeout
		p.events.LogAcquireEvent("acquire_timeout", zap.String("key", string(res.Key)), elapsed)
		p.logger.Warn("Acquisition timed out", zap.String("key", string(res.Key)), zap.Duration("timeout", hardTimeout))
		return result, fmt.Errorf("%w after %s", domain.ErrTimeout, hardTimeout)
	}

	result.Reason = domain.Classify(err)
	p.events.LogAcquireEvent("acquire_failed",
		zap.String("key", string(res.Key)),
		zap.String("reason", string(result.Reason)),
		elapsed)
	p.logger.Warn("Acquisition failed", zap.String("key", string(res.Key)), zap.Error(err))
	return result, err
}

// execute runs the tiers once for a key. Every tier except an auth failure
// advances to the next one on error.
func (p *AcquisitionPipeline) execute(ctx context.Context, res domain.Resolution, variant domain.Variant) (*domain.AcquisitionResult, error) {
	stem := res.Identifier
	if stem == "" {
		stem = p.newToken()
	}
	dest := p.config.Download.OutputPath(variant, stem)
	done := func(tier domain.Tier, path string) (*domain.AcquisitionResult, error) {
		return &domain.AcquisitionResult{Key: res.Key, FilePath: path, Tier: tier}, nil
	}

	if res.Identifier != "" {
		if path, ok := p.config.Download.FindExisting(variant, stem); ok {
			p.stats.Inc(CounterCacheHit)
			return done(domain.TierCache, path)
		}
	}

	if path, ok := p.tryStore(ctx, res, variant, dest); ok {
		p.stats.Inc(CounterStoreHit)
		return done(domain.TierStore, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.jobAPI != nil && p.fetcher != nil {
		path, err := p.runJobAPI(ctx, res, variant, dest)
		if err == nil {
			p.stats.Inc(CounterAPISuccess)
			p.archive(ctx, res, variant, path)
			return done(domain.TierJobAPI, path)
		}

		var hard *domain.HardAPIError
		if errors.As(err, &hard) {
			p.stats.Inc(CounterAuthFailure)
			p.events.LogAppError("Job API rejected credentials",
				zap.Int("status", hard.Status),
				zap.String("body", hard.BodyPreview))
			if p.notifier != nil {
				p.notifier.NotifyAuthFailure(hard.Status, hard.BodyPreview)
			}
			return &domain.AcquisitionResult{Key: res.Key, Reason: domain.ReasonAuthFailure}, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.stats.Inc(CounterAPIError)
		p.tierFailed(res.Key, domain.TierJobAPI, err)
	}

	if path, err := p.runLegacy(ctx, res, variant); err == nil {
		p.stats.Inc(CounterLegacySuccess)
		p.archive(ctx, res, variant, path)
		return done(domain.TierLegacy, path)
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	} else if !errors.Is(err, errTierDisabled) {
		p.stats.Inc(CounterLegacyError)
		p.tierFailed(res.Key, domain.TierLegacy, err)
	}

	return &domain.AcquisitionResult{Key: res.Key, Reason: domain.ReasonAllTiers}, domain.ErrAllTiersFailed
}

var errTierDisabled = errors.New("tier disabled")

// tryStore serves dest from the content store unless it is cooling down
func (p *AcquisitionPipeline) tryStore(ctx context.Context, res domain.Resolution, variant domain.Variant, dest string) (string, bool) {
	if p.store == nil || res.Identifier == "" {
		return "", false
	}

	if until := p.storeCooldownUntil.Load(); p.now().UnixNano() < until {
		p.stats.Inc(CounterStoreSkipped)
		p.events.LogAcquireEvent("tier_skipped",
			zap.String("key", string(res.Key)),
			zap.String("tier", string(domain.TierStore)),
			zap.Time("cooldown_until", time.Unix(0, until)))
		return "", false
	}

	has, err := p.store.HasEntry(ctx, res.Identifier, variant)
	if err != nil {
		p.tierFailed(res.Key, domain.TierStore, err)
		return "", false
	}
	if !has {
		return "", false
	}

	path, err := p.store.FetchEntry(ctx, res.Identifier, variant, dest)
	if err != nil {
		var flood *domain.FloodWaitError
		if errors.As(err, &flood) {
			p.stats.Inc(CounterStoreFlood)
			p.storeCooldownUntil.Store(p.now().Add(flood.Wait).UnixNano())
		}
		p.tierFailed(res.Key, domain.TierStore, err)
		return "", false
	}
	if !nonEmptyFile(path) {
		p.tierFailed(res.Key, domain.TierStore, domain.ErrEmptyResult)
		return "", false
	}
	return path, true
}

// runJobAPI performs up to Cycles submit/poll/fetch rounds
func (p *AcquisitionPipeline) runJobAPI(ctx context.Context, res domain.Resolution, variant domain.Variant, dest string) (string, error) {
	cfg := p.config.JobAPI
	query := res.Identifier
	if query == "" {
		query = strings.TrimSpace(res.Input)
	}

	cycles := cfg.Cycles
	if cycles < 1 {
		cycles = 1
	}

	var lastErr error
	var wait time.Duration
	for cycle := 0; cycle < cycles; cycle++ {
		if cycle > 0 {
			if err := sleepContext(ctx, wait); err != nil {
				return "", err
			}
		}

		payload, err := p.jobAPI.SubmitJob(ctx, query, variant)
		if err != nil {
			if errors.Is(err, domain.ErrAuthFailure) || errors.Is(err, infrastructure.ErrAPINotConfigured) || ctx.Err() != nil {
				return "", err
			}
			lastErr, wait = err, cfg.EmptyWait
			continue
		}
		if payload == nil {
			lastErr, wait = domain.ErrNoCandidate, cfg.EmptyWait
			continue
		}

		candidate := infrastructure.ValidCandidate(payload)
		if candidate == "" {
			jobID := infrastructure.ExtractJobID(payload)
			if jobID == "" {
				lastErr, wait = domain.ErrNoCandidate, cfg.NoCandidateWait
				continue
			}
			job, err := p.pollJob(ctx, jobID)
			if err != nil {
				return "", err
			}
			candidate = job.Candidate
		}
		if candidate == "" {
			lastErr, wait = domain.ErrNoCandidate, cfg.NoCandidateWait
			continue
		}

		fetchURL, err := p.normalizer.Normalize(candidate)
		if err != nil {
			lastErr, wait = err, cfg.NoCandidateWait
			continue
		}

		if nonEmptyFile(dest) {
			return dest, nil
		}
		if err := p.fetcher.Fetch(ctx, fetchURL, dest); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr, wait = err, cfg.FetchFailWait
			continue
		}
		return dest, nil
	}

	return "", fmt.Errorf("job api failed after %d cycles: %w", cycles, lastErr)
}

// pollJob polls until a validated candidate appears, the job reports an
// error, or the attempt budget runs out. Only an auth failure or ctx end is
// returned as an error.
func (p *AcquisitionPipeline) pollJob(ctx context.Context, jobID string) (*domain.Job, error) {
	cfg := p.config.JobAPI
	policy := infrastructure.RetryPolicy{
		MaxAttempts: cfg.PollAttempts,
		BaseDelay:   cfg.PollInterval,
		Factor:      cfg.PollBackoff,
	}

	job := &domain.Job{ID: jobID, Status: domain.JobPending}
	for attempt := 0; attempt < policy.Attempts(); attempt++ {
		if err := policy.Wait(ctx, attempt); err != nil {
			return job, err
		}

		payload, err := p.jobAPI.PollJob(ctx, jobID)
		job.Polls++
		if err != nil {
			if errors.Is(err, domain.ErrAuthFailure) || ctx.Err() != nil {
				return job, err
			}
			continue
		}

		job.Status = infrastructure.JobStatusOf(payload)
		if job.Status == domain.JobDone {
			job.Candidate = infrastructure.ValidCandidate(payload)
		}
		if job.IsTerminal() {
			p.logger.Debug("Job reached terminal state",
				zap.String("job_id", jobID),
				zap.String("status", string(job.Status)),
				zap.Int("polls", job.Polls))
			return job, nil
		}
	}
	return job, nil
}

// runLegacy invokes the last-resort extractor on its own goroutine
func (p *AcquisitionPipeline) runLegacy(ctx context.Context, res domain.Resolution, variant domain.Variant) (string, error) {
	if p.legacy == nil {
		return "", errTierDisabled
	}

	var link string
	switch {
	case res.IsURL:
		link = strings.TrimSpace(res.Input)
	case res.Identifier != "":
		link = domain.WatchURL(res.Identifier)
	default:
		return "", errTierDisabled
	}

	type outcome struct {
		path string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		path, err := p.legacy.Extract(ctx, link, variant)
		ch <- outcome{path, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-ch:
		if out.err != nil {
			return "", out.err
		}
		if !nonEmptyFile(out.path) {
			return "", domain.ErrEmptyResult
		}
		return out.path, nil
	}
}

// archive records a fresh acquisition in the content store
func (p *AcquisitionPipeline) archive(ctx context.Context, res domain.Resolution, variant domain.Variant, path string) {
	if p.store == nil || res.Identifier == "" || !p.config.Store.ArchiveOnSuccess {
		return
	}
	if err := p.store.Record(ctx, res.Identifier, variant, path); err != nil {
		p.logger.Warn("Failed to archive acquisition",
			zap.String("key", string(res.Key)),
			zap.Error(err))
	}
}

func (p *AcquisitionPipeline) tierFailed(key domain.ContentKey, tier domain.Tier, err error) {
	p.events.LogAcquireEvent("tier_failed",
		zap.String("key", string(key)),
		zap.String("tier", string(tier)),
		zap.String("reason", string(domain.Classify(err))),
		zap.Error(err))
	p.logger.Info("Tier failed, advancing",
		zap.String("key", string(key)),
		zap.String("tier", string(tier)),
		zap.Error(err))
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
