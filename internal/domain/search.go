package domain

import "sort"

// SearchResult pairs a chunk with its relevance score for one query.
type SearchResult struct {
	Chunk ConversationChunk
	Score RelevanceScore
}

// IsRelevant reports whether the result clears threshold.
func (r SearchResult) IsRelevant(threshold RelevanceScore) bool {
	return r.Score.IsRelevant(threshold)
}

// SearchResults is an ordered collection sorted by score descending, ties
// broken by (conversation_id asc, order_index asc).
type SearchResults []SearchResult

// Sort orders results in place per the tie-breaking rule of spec.md §3/§4.8.
func (r SearchResults) Sort() {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		if r[i].Chunk.ConversationID != r[j].Chunk.ConversationID {
			return r[i].Chunk.ConversationID < r[j].Chunk.ConversationID
		}
		return r[i].Chunk.OrderIndex < r[j].Chunk.OrderIndex
	})
}

// Truncate returns the first k results (or all, if fewer than k).
func (r SearchResults) Truncate(k int) SearchResults {
	if k < 0 || k > len(r) {
		k = len(r)
	}
	return r[:k]
}

// FilterRelevant returns the subset of results meeting threshold.
func (r SearchResults) FilterRelevant(threshold RelevanceScore) SearchResults {
	out := make(SearchResults, 0, len(r))
	for _, res := range r {
		if res.IsRelevant(threshold) {
			out = append(out, res)
		}
	}
	return out
}
