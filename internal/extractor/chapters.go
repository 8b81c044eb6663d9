package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

// Chapter lists are mined from free text in two common shapes:
//
//  1. 0:00 Intro            (timestamp then title)
//  2. Intro - 0:00          (title then timestamp)
//
// Lines may carry a leading track number ("03. Song 12:34") which is
// stripped from the title.
var (
	timestampFirstRe = regexp.MustCompile(`^\s*(?:\d{1,3}[.)]\s+)?[\[(]?(\d{1,3}:\d{2}(?::\d{2})?)[\])]?\s*[-–—|:>\s]\s*(.+?)\s*$`)
	titleFirstRe     = regexp.MustCompile(`^\s*(?:\d{1,3}[.)]\s+)?(.+?)\s*[-–—|:(\[]?\s*[\[(]?(\d{1,3}:\d{2}(?::\d{2})?)[\])]?\s*$`)
	leadingNumberRe  = regexp.MustCompile(`^\d{1,3}[.)]\s+`)
)

// minMinedChapters guards against treating a lone timestamped line as a
// chapter list.
const minMinedChapters = 3

// MineChapters extracts a chapter list from the top comments and the
// description of an upload. Comments usually carry the complete,
// corrected listing, so the best comment wins: most chapters first,
// then the one reaching furthest into the track. The description is
// the fallback when no comment yields a usable list.
func MineChapters(description string, comments []string, duration float64) []domain.Chapter {
	var best []domain.Chapter
	for _, comment := range comments {
		chapters := mineText(comment, duration)
		if chapters == nil {
			continue
		}
		if len(chapters) > len(best) ||
			(len(chapters) == len(best) &&
				chapters[len(chapters)-1].StartTime > best[len(best)-1].StartTime) {
			best = chapters
		}
	}
	if best != nil {
		return best
	}
	return mineText(description, duration)
}

// mineText scans one block of text for chapter lines. Returns nil when
// the text does not look like a chapter list.
func mineText(text string, duration float64) []domain.Chapter {
	if text == "" {
		return nil
	}

	type mined struct {
		title string
		start float64
	}
	var found []mined

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var title string
		var start float64
		var ok bool

		if m := timestampFirstRe.FindStringSubmatch(line); m != nil {
			if start, ok = parseTimestamp(m[1]); ok {
				title = m[2]
			}
		}
		if !ok {
			if m := titleFirstRe.FindStringSubmatch(line); m != nil {
				if start, ok = parseTimestamp(m[2]); ok {
					title = m[1]
				}
			}
		}
		if !ok {
			continue
		}

		title = cleanChapterTitle(title)
		if title == "" {
			continue
		}
		if duration > 0 && start > duration {
			continue
		}
		found = append(found, mined{title: title, start: start})
	}

	if len(found) < minMinedChapters {
		return nil
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })

	// A real chapter list starts at or near zero and increases strictly.
	if found[0].start > 30 {
		return nil
	}
	chapters := make([]domain.Chapter, 0, len(found))
	for i, f := range found {
		if i > 0 && f.start <= found[i-1].start {
			continue
		}
		chapters = append(chapters, domain.Chapter{Title: f.title, StartTime: f.start})
	}
	if len(chapters) < minMinedChapters {
		return nil
	}

	for i := range chapters {
		if i+1 < len(chapters) {
			chapters[i].EndTime = chapters[i+1].StartTime
		} else if duration > 0 {
			chapters[i].EndTime = duration
		}
	}
	return chapters
}

// chaptersLookIncomplete reports whether the final chapter dwarfs the
// rest, the signature of a list that stops partway through the upload.
func chaptersLookIncomplete(chapters []domain.Chapter) bool {
	if len(chapters) < 2 {
		return false
	}
	last := chapters[len(chapters)-1]
	lastDur := last.EndTime - last.StartTime
	if lastDur <= 0 {
		return false
	}

	var sum float64
	for _, ch := range chapters[:len(chapters)-1] {
		sum += ch.EndTime - ch.StartTime
	}
	mean := sum / float64(len(chapters)-1)
	return mean > 0 && lastDur > 3*mean
}

// parseTimestamp converts "h:mm:ss" or "m:ss" to seconds.
func parseTimestamp(ts string) (float64, bool) {
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var seconds float64
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, false
		}
		seconds = seconds*60 + float64(n)
	}
	return seconds, true
}

// cleanChapterTitle strips list numbering and separator leftovers.
func cleanChapterTitle(title string) string {
	title = strings.TrimSpace(title)
	title = leadingNumberRe.ReplaceAllString(title, "")
	title = strings.Trim(title, "-–—|:>[]() \t")
	return strings.TrimSpace(title)
}
