package analysis

import (
	"math"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

// Boundary correction parameters. A candidate silence must end within
// SearchWindowSeconds of the nominal boundary; among candidates, being
// close to the nominal boundary matters more than being a long gap.
const (
	SearchWindowSeconds = 15.0
	proximityWeight     = 0.7
	durationWeight      = 0.3
	fullCreditSilence   = 2.0
	minChapterSeconds   = 1.0
)

// CorrectBoundaries snaps chapter boundaries onto detected silences.
// Each interior boundary moves to the end of the best-scoring silence
// within the search window, so the next chapter begins right as the
// music resumes. Boundaries with no nearby silence stay where they are.
func CorrectBoundaries(chapters []domain.Chapter, silences []Silence) []domain.Chapter {
	if len(chapters) < 2 {
		return chapters
	}

	out := make([]domain.Chapter, len(chapters))
	copy(out, chapters)

	for i := 1; i < len(out); i++ {
		boundary := out[i].StartTime
		candidate, ok := bestSilence(boundary, silences)
		if !ok {
			continue
		}
		out[i].StartTime = candidate.End
		out[i-1].EndTime = candidate.End
	}

	// Snapping two adjacent boundaries onto the same silence can leave
	// a degenerate chapter. Restore a minimum length and push the
	// follower along.
	for i := 0; i < len(out); i++ {
		if out[i].EndTime-out[i].StartTime < minChapterSeconds {
			out[i].EndTime = out[i].StartTime + minChapterSeconds
			if i+1 < len(out) {
				out[i+1].StartTime = out[i].EndTime
			}
		}
	}
	return out
}

// bestSilence scores candidate silences near a boundary. Proximity of
// the silence end to the boundary dominates; longer gaps get partial
// extra credit up to fullCreditSilence seconds.
func bestSilence(boundary float64, silences []Silence) (Silence, bool) {
	var best Silence
	bestScore := -1.0

	for _, s := range silences {
		dist := math.Abs(s.End - boundary)
		if dist > SearchWindowSeconds {
			continue
		}
		score := proximityWeight*(1/(1+dist)) +
			durationWeight*math.Min(s.Duration/fullCreditSilence, 1)
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, bestScore >= 0
}
