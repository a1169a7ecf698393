package search

import (
	"sort"

	"github.com/havenops/ric/internal/store"
)

// DefaultRRFK is the standard reciprocal rank fusion constant.
const DefaultRRFK = 60

// fuse merges ranked lists with reciprocal rank fusion. Each chunk's fused
// score is the sum over lists of 1/(k+rank) with rank counted from zero.
// The union sorts by fused score descending; ties break on the chunk's best
// rank across lists, then on chunk ID. No per-source weighting and no
// normalization: scores from different list counts are not comparable.
func fuse(lists [][]*store.SearchResult, k int) []*store.SearchResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		result  *store.SearchResult
		score   float64
		minRank int
	}

	merged := make(map[string]*fused)
	for _, list := range lists {
		for rank, r := range list {
			contribution := 1.0 / float64(k+rank)
			f, ok := merged[r.ChunkID]
			if !ok {
				merged[r.ChunkID] = &fused{result: r, score: contribution, minRank: rank}
				continue
			}
			f.score += contribution
			if rank < f.minRank {
				f.minRank = rank
			}
		}
	}

	out := make([]*fused, 0, len(merged))
	for _, f := range merged {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].minRank != out[j].minRank {
			return out[i].minRank < out[j].minRank
		}
		return out[i].result.ChunkID < out[j].result.ChunkID
	})

	results := make([]*store.SearchResult, len(out))
	for i, f := range out {
		r := *f.result
		r.Score = f.score
		results[i] = &r
	}
	return results
}
