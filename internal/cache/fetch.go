package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
)

// Fetcher acquires media into the cache, either by downloading a whole
// file or by cutting a time window out of a longer source.
type Fetcher struct {
	cache     *Cache
	client    *http.Client
	ffmpegBin string
	log       *slog.Logger
}

// NewFetcher creates a fetcher backed by the given cache.
func NewFetcher(c *Cache, ffmpegBin string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		cache: c,
		client: &http.Client{
			// No overall timeout: full-length media downloads are
			// bounded by the caller's context instead.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		ffmpegBin: ffmpegBin,
		log:       log,
	}
}

// Cache exposes the underlying cache for lookups and invalidation.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Download fetches url into the cache under key, streaming the body to
// disk. Concurrent calls for the same key share one download.
func (f *Fetcher) Download(ctx context.Context, key, url string) (string, error) {
	return f.cache.GetOrFetch(ctx, key, func(ctx context.Context, dest string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build download request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeExtractionFailed, "download media")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return apperrors.ExtractionFailedf("media download returned status %d", resp.StatusCode)
		}

		out, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("create cache file: %w", err)
		}

		written, err := io.Copy(out, resp.Body)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeExtractionFailed, "stream media to disk")
		}

		f.log.Debug("downloaded media", "key", key, "bytes", written)
		return nil
	})
}

// Extract cuts window out of sourceURL into the cache under key without
// re-encoding. Used for tracks that are a segment of a longer upload.
func (f *Fetcher) Extract(ctx context.Context, key, sourceURL string, window domain.TimeWindow) (string, error) {
	return f.cache.GetOrFetch(ctx, key, func(ctx context.Context, dest string) error {
		cmd := ffmpeg.New(f.ffmpegBin).
			Overwrite().
			SeekInput(window.StartTime).
			Input(sourceURL).
			Duration(window.Duration()).
			WithCodec(ffmpeg.Copy{}).
			Output(dest)

		f.log.Debug("extracting windowed media", "key", key,
			"start", window.StartTime, "duration", window.Duration())

		if err := cmd.Run(ctx, ffmpeg.RunOptions{}); err != nil {
			return apperrors.Wrap(err, apperrors.CodeExtractionFailed, "extract media window")
		}
		return nil
	})
}
