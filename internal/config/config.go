// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Store     StoreConfig
	Cache     CacheConfig
	Transcode TranscodeConfig
	Extractor ExtractorConfig
	Providers ProvidersConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 0, streaming responses)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	// Path is the Badger database directory (default: {data}/db)
	Path string
}

// CacheConfig holds media cache configuration.
type CacheConfig struct {
	// Dir is the cache directory (default: {data}/cache/media)
	Dir string
	// MaxFiles bounds the number of cached clips (default: 200)
	MaxFiles int
	// MaxBytes bounds cumulative cache size (default: 4 GiB)
	MaxBytes int64
	// TTL reclaims entries untouched for this long regardless of LRU pressure (default: 168h)
	TTL time.Duration
}

// TranscodeConfig holds audio transcoding configuration.
type TranscodeConfig struct {
	// FFmpegPath overrides auto-detection of ffmpeg location (default: auto-detect)
	FFmpegPath string
}

// ExtractorConfig holds external extraction tool configuration.
type ExtractorConfig struct {
	// YtDlpPath overrides auto-detection of yt-dlp location (default: auto-detect)
	YtDlpPath string
	// CookieFile is a Netscape cookie jar passed to the extraction tool
	// for credentialed listings (optional)
	CookieFile string
	// StreamURLTTL bounds how long resolved stream locations are trusted (default: 4h)
	StreamURLTTL time.Duration
	// TrackInfoTTL bounds metadata cache freshness (default: 5m)
	TrackInfoTTL time.Duration
	// Timeout is the hard ceiling on a single tool invocation (default: 90s)
	Timeout time.Duration
	// RatePerMinute throttles tool invocations (default: 30)
	RatePerMinute int
}

// ProvidersConfig holds provider plugin configuration.
type ProvidersConfig struct {
	// ManifestDir is the directory of provider manifest JSON files (default: {data}/providers)
	ManifestDir string
	// LocalMusicPath is the root of the local provider's library (optional)
	LocalMusicPath string
	// SpotifyPipePath is the named pipe librespot writes raw PCM to (optional)
	SpotifyPipePath string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for server data")
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 0, unbounded for streaming)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	cacheDir := flag.String("cache-dir", "", "Media cache directory")
	cacheMaxFiles := flag.String("cache-max-files", "", "Max cached clips (default: 200)")
	cacheMaxBytes := flag.String("cache-max-bytes", "", "Max cache bytes (default: 4294967296)")
	cacheTTL := flag.String("cache-ttl", "", "Cache entry expiry (default: 168h)")

	ffmpegPath := flag.String("ffmpeg-path", "", "Path to ffmpeg binary (default: auto-detect)")
	ytdlpPath := flag.String("ytdlp-path", "", "Path to yt-dlp binary (default: auto-detect)")
	cookieFile := flag.String("cookie-file", "", "Netscape cookie jar for credentialed extraction")
	extractorTimeout := flag.String("extractor-timeout", "", "Extraction tool invocation ceiling (default: 90s)")

	manifestDir := flag.String("provider-manifest-dir", "", "Directory of provider manifest files")
	localMusicPath := flag.String("local-music-path", "", "Root of the local music library")
	spotifyPipePath := flag.String("spotify-pipe-path", "", "Named pipe carrying raw PCM from librespot")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Cache: CacheConfig{
			Dir:      getConfigValue(*cacheDir, "CACHE_DIR", ""),
			MaxFiles: getIntConfigValue(*cacheMaxFiles, "CACHE_MAX_FILES", 200),
			MaxBytes: getInt64ConfigValue(*cacheMaxBytes, "CACHE_MAX_BYTES", 4<<30),
		},
		Transcode: TranscodeConfig{
			FFmpegPath: getConfigValue(*ffmpegPath, "FFMPEG_PATH", ""),
		},
		Extractor: ExtractorConfig{
			YtDlpPath:     getConfigValue(*ytdlpPath, "YTDLP_PATH", ""),
			CookieFile:    getConfigValue(*cookieFile, "EXTRACTOR_COOKIE_FILE", ""),
			RatePerMinute: getIntConfigValue("", "EXTRACTOR_RATE_PER_MINUTE", 30),
		},
		Providers: ProvidersConfig{
			ManifestDir:     getConfigValue(*manifestDir, "PROVIDER_MANIFEST_DIR", ""),
			LocalMusicPath:  getConfigValue(*localMusicPath, "LOCAL_MUSIC_PATH", ""),
			SpotifyPipePath: getConfigValue(*spotifyPipePath, "SPOTIFY_PIPE_PATH", ""),
		},
	}

	basePath, err := expandDataPath(getConfigValue(*dataPath, "DATA_PATH", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	cfg.Store.Path = filepath.Join(basePath, "db")
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(basePath, "cache", "media")
	}
	if cfg.Providers.ManifestDir == "" {
		cfg.Providers.ManifestDir = filepath.Join(basePath, "providers")
	}

	// Parse durations.
	var parseErr error
	cfg.Server.ReadTimeout, parseErr = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.Server.WriteTimeout, parseErr = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s")
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.Server.IdleTimeout, parseErr = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.Cache.TTL, parseErr = parseDurationValue(*cacheTTL, "CACHE_TTL", "168h")
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.Extractor.StreamURLTTL, parseErr = parseDurationValue("", "EXTRACTOR_STREAM_URL_TTL", "4h")
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.Extractor.TrackInfoTTL, parseErr = parseDurationValue("", "EXTRACTOR_TRACK_INFO_TTL", "5m")
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.Extractor.Timeout, parseErr = parseDurationValue(*extractorTimeout, "EXTRACTOR_TIMEOUT", "90s")
	if parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Cache.MaxFiles <= 0 {
		return errors.New("cache max files must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		return errors.New("cache max bytes must be positive")
	}
	if c.Extractor.Timeout <= 0 {
		return errors.New("extractor timeout must be positive")
	}

	// LocalMusicPath and SpotifyPipePath may be empty; the matching
	// providers simply stay unconfigured.

	return nil
}

// expandDataPath expands ~ and makes the path absolute, defaulting to
// ~/Harmonia when empty.
func expandDataPath(path string) (string, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, "Harmonia"), nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getInt64ConfigValue returns an int64 from flag, env var, or default.
func getInt64ConfigValue(flagValue, envKey string, defaultValue int64) int64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int64
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	str := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(envKey), str, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
