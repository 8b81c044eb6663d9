// Package extractor wraps the yt-dlp tool behind a typed, rate-limited
// gateway. Resolved stream URLs and track metadata are memoized with
// short lifetimes because upstream URLs carry expiring signatures.
package extractor

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
)

// Config tunes the gateway.
type Config struct {
	YtDlpPath     string
	CookieFile    string
	StreamURLTTL  time.Duration
	TrackInfoTTL  time.Duration
	Timeout       time.Duration
	RatePerMinute int
}

// TrackInfo is the metadata yt-dlp reports for one media page.
type TrackInfo struct {
	ID          string
	Title       string
	Uploader    string
	Duration    float64
	Thumbnail   string
	Description string
	WebpageURL  string
	Chapters    []domain.Chapter
	// ChaptersIncomplete marks a chapter list whose final entry is
	// suspiciously long relative to the rest, usually a listing that
	// stops partway through the upload.
	ChaptersIncomplete bool
}

// SearchItem is one entry of a search or playlist listing.
type SearchItem struct {
	ID        string
	Title     string
	Uploader  string
	URL       string
	Duration  float64
	Thumbnail string
}

// Extractor shells out to yt-dlp.
type Extractor struct {
	cfg     Config
	limiter *rate.Limiter
	urls    *ttlMap[string]
	infos   *ttlMap[*TrackInfo]
	log     *slog.Logger
}

// New creates a gateway using the given yt-dlp binary.
func New(cfg Config, log *slog.Logger) *Extractor {
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = "yt-dlp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	return &Extractor{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute),
		urls:    newTTLMap[string](cfg.StreamURLTTL),
		infos:   newTTLMap[*TrackInfo](cfg.TrackInfoTTL),
		log:     log,
	}
}

// WithCookieFile derives a gateway that authenticates tool invocations
// with the given cookie jar. The derived instance shares the rate
// limiter; memoized URLs and metadata are kept separate because
// authenticated listings can differ from anonymous ones.
func (e *Extractor) WithCookieFile(path string) *Extractor {
	if path == "" || path == e.cfg.CookieFile {
		return e
	}
	cfg := e.cfg
	cfg.CookieFile = path
	return &Extractor{
		cfg:     cfg,
		limiter: e.limiter,
		urls:    newTTLMap[string](cfg.StreamURLTTL),
		infos:   newTTLMap[*TrackInfo](cfg.TrackInfoTTL),
		log:     e.log,
	}
}

// StreamURL resolves a page URL to a direct media URL. Results are
// memoized because resolution is expensive, but only briefly because
// the returned URLs expire upstream.
func (e *Extractor) StreamURL(ctx context.Context, pageURL string) (string, error) {
	if cached, ok := e.urls.get(pageURL); ok {
		return cached, nil
	}

	args := []string{"--no-warnings", "--quiet", "-f", formatSelector(pageURL), "--get-url"}
	args = e.appendCookies(args)
	args = append(args, pageURL)

	out, err := e.run(ctx, args)
	if err != nil {
		return "", err
	}

	// yt-dlp may print one URL per selected stream; the first is audio.
	streamURL, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if streamURL == "" {
		return "", apperrors.ExtractionFailed("resolver returned no stream URL")
	}

	e.urls.set(pageURL, streamURL)
	return streamURL, nil
}

// InvalidateStreamURL drops a memoized stream URL, used after an
// upstream fetch against it fails.
func (e *Extractor) InvalidateStreamURL(pageURL string) {
	e.urls.delete(pageURL)
}

// TrackInfo fetches metadata for a media page, mining chapters from
// the top comments and description when the page itself has none or
// its native list looks truncated.
func (e *Extractor) TrackInfo(ctx context.Context, pageURL string) (*TrackInfo, error) {
	if cached, ok := e.infos.get(pageURL); ok {
		return cached, nil
	}

	args := []string{"--no-warnings", "-J", "--write-comments",
		"--extractor-args", "youtube:max_comments=100,all,0,0;comment_sort=top"}
	args = e.appendCookies(args)
	args = append(args, pageURL)

	out, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var raw rawInfo
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExtractionFailed, "parse track metadata")
	}

	info := raw.toTrackInfo()
	info.ChaptersIncomplete = chaptersLookIncomplete(info.Chapters)
	// A single chapter is as useless as none, and a truncated native
	// list is worth replacing with a mined one.
	if len(info.Chapters) < 2 || info.ChaptersIncomplete {
		comments := make([]string, 0, len(raw.Comments))
		for _, c := range raw.Comments {
			comments = append(comments, c.Text)
		}
		if mined := MineChapters(info.Description, comments, info.Duration); len(mined) > 0 {
			info.Chapters = mined
			info.ChaptersIncomplete = chaptersLookIncomplete(mined)
		}
	}

	e.infos.set(pageURL, info)
	return info, nil
}

// Search runs a provider-side search and returns flat results.
func (e *Extractor) Search(ctx context.Context, prefix, query string, limit int) ([]SearchItem, error) {
	if limit <= 0 {
		limit = 10
	}
	target := fmt.Sprintf("%s%d:%s", prefix, limit, query)

	args := []string{"--no-warnings", "-J", "--flat-playlist"}
	args = e.appendCookies(args)
	args = append(args, target)

	out, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseListing(out)
}

// Playlist lists the entries of a playlist or channel page.
func (e *Extractor) Playlist(ctx context.Context, pageURL string) ([]SearchItem, error) {
	args := []string{"--no-warnings", "-J", "--flat-playlist"}
	args = e.appendCookies(args)
	args = append(args, pageURL)

	out, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseListing(out)
}

func (e *Extractor) appendCookies(args []string) []string {
	if e.cfg.CookieFile != "" {
		return append(args, "--cookies", e.cfg.CookieFile)
	}
	return args
}

func (e *Extractor) run(ctx context.Context, args []string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.YtDlpPath, args...) //#nosec G204 -- binary path is validated at service init

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.log.Debug("extractor finished", "args", strings.Join(args, " "),
		"duration", time.Since(start), "error", err != nil)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.ExtractionFailed("extraction timed out")
		}
		return "", classifyFailure(stderr.String())
	}
	return stdout.String(), nil
}

// classifyFailure maps extractor stderr to a domain error so handlers
// can distinguish auth problems from removed content.
func classifyFailure(stderr string) error {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "sign in to confirm"),
		strings.Contains(lower, "cookies are no longer valid"),
		strings.Contains(lower, "use --cookies"):
		return apperrors.ExpiredCredentials("stored cookies are expired or invalid")
	case strings.Contains(lower, "private video"),
		strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "content isn't available"),
		strings.Contains(lower, "has been removed"):
		return apperrors.ContentUnavailable("media is private or has been removed")
	case strings.Contains(lower, "unable to extract"):
		return apperrors.ExtractionFailed("resolver could not extract media data")
	default:
		return apperrors.ExtractionFailedf("extraction failed: %s", lastStderrLine(stderr))
	}
}

func lastStderrLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no diagnostic output"
}

// formatSelector picks a download format expression per host. Hosts
// serving native m4a get a selector preferring it so cached files can
// be windowed without re-encoding.
func formatSelector(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "bestaudio/best"
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "youtube") || strings.Contains(host, "youtu.be"):
		return "bestaudio[ext=m4a]/bestaudio/best"
	case strings.Contains(host, "soundcloud"):
		return "bestaudio/best"
	default:
		return "bestaudio/best"
	}
}

type rawInfo struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Uploader    string       `json:"uploader"`
	Artist      string       `json:"artist"`
	Duration    float64      `json:"duration"`
	Thumbnail   string       `json:"thumbnail"`
	Description string       `json:"description"`
	WebpageURL  string       `json:"webpage_url"`
	Chapters    []rawChapter `json:"chapters"`
	Comments    []rawComment `json:"comments"`
	Entries     []rawInfo    `json:"entries"`
}

type rawChapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type rawComment struct {
	Text string `json:"text"`
}

func (r rawInfo) toTrackInfo() *TrackInfo {
	uploader := r.Artist
	if uploader == "" {
		uploader = r.Uploader
	}
	info := &TrackInfo{
		ID:          r.ID,
		Title:       r.Title,
		Uploader:    uploader,
		Duration:    r.Duration,
		Thumbnail:   r.Thumbnail,
		Description: r.Description,
		WebpageURL:  r.WebpageURL,
	}
	for _, ch := range r.Chapters {
		info.Chapters = append(info.Chapters, domain.Chapter{
			Title:     cleanChapterTitle(ch.Title),
			StartTime: ch.StartTime,
			EndTime:   ch.EndTime,
		})
	}
	return info
}

func parseListing(out string) ([]SearchItem, error) {
	var raw rawInfo
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExtractionFailed, "parse listing")
	}

	entries := raw.Entries
	if entries == nil {
		entries = []rawInfo{raw}
	}

	items := make([]SearchItem, 0, len(entries))
	for _, entry := range entries {
		uploader := entry.Artist
		if uploader == "" {
			uploader = entry.Uploader
		}
		items = append(items, SearchItem{
			ID:        entry.ID,
			Title:     entry.Title,
			Uploader:  uploader,
			URL:       entry.WebpageURL,
			Duration:  entry.Duration,
			Thumbnail: entry.Thumbnail,
		})
	}
	return items, nil
}
