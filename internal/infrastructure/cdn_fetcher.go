package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/music-miko/t/internal/domain"
)

const defaultChunkSize = 1024 * 1024

// CDNFetcher streams large media payloads to disk
type CDNFetcher struct {
	client         *http.Client
	policy         RetryPolicy
	attemptTimeout time.Duration
	chunkSize      int
	logger         *zap.Logger
}

// NewCDNFetcher creates a fetcher on the shared connection pool
func NewCDNFetcher(config *domain.CDNConfig, logger *zap.Logger) *CDNFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &CDNFetcher{
		client:         SharedHTTPClient(),
		policy:         FixedPolicy(config.Retries, config.RetryDelay),
		attemptTimeout: config.AttemptTimeout,
		chunkSize:      chunkSize,
		logger:         logger,
	}
}

// Fetch downloads url into dest. Non-200 responses, transport errors and
// zero-byte bodies are all retried within the attempt budget; dest only
// appears once a non-empty body has been fully written.
func (f *CDNFetcher) Fetch(ctx context.Context, url, dest string) error {
	if url == "" {
		return fmt.Errorf("%w: empty url", domain.ErrInvalidLocator)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	attempts := f.policy.Attempts()
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := f.policy.Wait(ctx, attempt-1); err != nil {
				return err
			}
		}

		err := f.fetchOnce(ctx, url, dest)
		if err == nil {
			f.logger.Info("CDN download completed",
				zap.String("url", url),
				zap.String("path", dest),
				zap.Int("attempt", attempt+1))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		f.logger.Warn("CDN download attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
	}

	if errors.Is(lastErr, domain.ErrEmptyResult) {
		return fmt.Errorf("cdn fetch failed after %d attempts: %w", attempts, lastErr)
	}
	return fmt.Errorf("%w: cdn fetch failed after %d attempts: %v", domain.ErrTransient, attempts, lastErr)
}

func (f *CDNFetcher) fetchOnce(ctx context.Context, url, dest string) error {
	attemptCtx := ctx
	if f.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidLocator, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	partPath := dest + ".part"
	written, err := f.writeChunks(resp.Body, partPath)
	if err != nil {
		os.Remove(partPath)
		return err
	}
	if written == 0 {
		os.Remove(partPath)
		return domain.ErrEmptyResult
	}

	if err := os.Rename(partPath, dest); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("failed to stat download: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(dest)
		return domain.ErrEmptyResult
	}
	return nil
}

// writeChunks copies body to path in fixed-size chunks
func (f *CDNFetcher) writeChunks(body io.Reader, path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, f.chunkSize)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write chunk: %w", err)
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, fmt.Errorf("failed to read body: %w", readErr)
		}
	}

	if err := file.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync file: %w", err)
	}
	return written, nil
}
