package retriever

import "sort"

// rrfK is the standard Reciprocal Rank Fusion constant. It damps the
// influence of top ranks so one list cannot dominate the fused order.
const rrfK = 60

// ranked is a scored chunk from one search leg, ordered best first.
type ranked struct {
	ChunkID string
	Score   float64
}

// fused carries the combined score plus each leg's native score when the
// chunk appeared in that leg.
type fused struct {
	ChunkID      string
	Score        float64
	VectorScore  *float64
	KeywordScore *float64
}

// fuseRRF merges two ranked lists with Reciprocal Rank Fusion: each list
// contributes 1/(60+rank) per chunk, 1-indexed, summed across lists. The
// result is ordered by fused score descending; ties keep vector-list order
// first, then keyword-list order.
func fuseRRF(vectorHits, keywordHits []ranked) []fused {
	order := make([]string, 0, len(vectorHits)+len(keywordHits))
	byID := make(map[string]*fused, len(vectorHits)+len(keywordHits))

	add := func(hits []ranked, vector bool) {
		for i, h := range hits {
			f, ok := byID[h.ChunkID]
			if !ok {
				f = &fused{ChunkID: h.ChunkID}
				byID[h.ChunkID] = f
				order = append(order, h.ChunkID)
			}
			f.Score += 1.0 / float64(rrfK+i+1)
			score := h.Score
			if vector {
				f.VectorScore = &score
			} else {
				f.KeywordScore = &score
			}
		}
	}
	add(vectorHits, true)
	add(keywordHits, false)

	out := make([]fused, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
