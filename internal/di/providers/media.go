package providers

import (
	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

// ffmpegBinary resolves the configured ffmpeg location.
func ffmpegBinary(cfg *config.Config) string {
	if cfg.Transcode.FFmpegPath != "" {
		return cfg.Transcode.FFmpegPath
	}
	return ffmpeg.DefaultBinary
}

// ProvideCache provides the on-disk media cache.
func ProvideCache(i do.Injector) (*cache.Cache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	c, err := cache.New(cache.Config{
		Dir:      cfg.Cache.Dir,
		MaxFiles: cfg.Cache.MaxFiles,
		MaxBytes: cfg.Cache.MaxBytes,
		TTL:      cfg.Cache.TTL,
	}, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Media cache initialized",
		"dir", cfg.Cache.Dir,
		"files", c.Len(),
		"bytes", c.Bytes(),
	)

	return c, nil
}

// ProvideFetcher provides the cache-backed media fetcher.
func ProvideFetcher(i do.Injector) (*cache.Fetcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	c := do.MustInvoke[*cache.Cache](i)

	return cache.NewFetcher(c, ffmpegBinary(cfg), log.Logger), nil
}

// ProvideTranscoder provides the audio transcoder.
func ProvideTranscoder(i do.Injector) (*transcode.Transcoder, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return transcode.New(ffmpegBinary(cfg), log.Logger), nil
}

// ProvideAnalyzer provides the silence analyzer.
func ProvideAnalyzer(i do.Injector) (*analysis.Analyzer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return analysis.New(ffmpegBinary(cfg), log.Logger), nil
}

// ProvideExtractor provides the yt-dlp gateway.
func ProvideExtractor(i do.Injector) (*extractor.Extractor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return extractor.New(extractor.Config{
		YtDlpPath:     cfg.Extractor.YtDlpPath,
		CookieFile:    cfg.Extractor.CookieFile,
		StreamURLTTL:  cfg.Extractor.StreamURLTTL,
		TrackInfoTTL:  cfg.Extractor.TrackInfoTTL,
		Timeout:       cfg.Extractor.Timeout,
		RatePerMinute: cfg.Extractor.RatePerMinute,
	}, log.Logger), nil
}
