package rag

import (
	"regexp"
	"strconv"

	"go.uber.org/zap"
)

var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// CitedSource is one resolved `[Source N]` citation.
type CitedSource struct {
	ConversationID int64
	ChunkID        int64
	Snippet        string
	Score          float64
	CitationIndex  int
}

// extractCitations scans text for `[Source N]` markers, resolves each N
// against the numbered sources, strips markers with invalid N (logging
// them), and returns the surviving text plus the resolved, de-duplicated
// citation list in first-appearance order (spec.md §4.9 step 7).
func extractCitations(text string, sources []Source, log *zap.SugaredLogger) (string, []CitedSource) {
	seen := make(map[int]bool)
	var cited []CitedSource

	cleaned := citationPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := citationPattern.FindStringSubmatch(match)
		n, err := strconv.Atoi(sub[1])
		if err != nil || n < 1 || n > len(sources) {
			if log != nil {
				log.Warnw("dropping invalid citation marker", "marker", match)
			}
			return ""
		}
		if !seen[n] {
			seen[n] = true
			src := sources[n-1]
			cited = append(cited, CitedSource{
				ConversationID: src.ConversationID,
				ChunkID:        src.ChunkID,
				Snippet:        src.Text,
				Score:          float64(src.Score),
				CitationIndex:  n,
			})
		}
		return match
	})

	return cleaned, cited
}

// confidence computes the weighted mean of cited source scores (clipped to
// [0,1]), or 0.5 × mean(top-k source scores) when the answer is non-empty
// but has no citations (spec.md §4.9 step 8).
func confidence(answerText string, cited []CitedSource, allSources []Source) float64 {
	if len(cited) > 0 {
		var sum float64
		for _, c := range cited {
			sum += c.Score
		}
		mean := sum / float64(len(cited))
		return clip01(mean)
	}
	if answerText == "" || len(allSources) == 0 {
		return 0.0
	}
	var sum float64
	for _, s := range allSources {
		sum += float64(s.Score)
	}
	mean := sum / float64(len(allSources))
	return clip01(0.5 * mean)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
