package retrieval

import "sort"

// RRFK 倒数排名融合常数
const RRFK = 60

// FuseRRF 用倒数排名融合合并多路结果：score = Σ 1/(K+rank+1)，
// 按全部列表都排第一时的最大值归一化到 [0,1]，保留 4 位小数。
// 同分时按首次出现顺序（先第一路）排列。
func FuseRRF(lists ...[]Result) []Result {
	type fused struct {
		result Result
		score  float64
	}
	byChunk := make(map[int64]*fused)
	var order []*fused
	for _, list := range lists {
		for rank, r := range list {
			f, ok := byChunk[r.ChunkID]
			if !ok {
				f = &fused{result: r}
				byChunk[r.ChunkID] = f
				order = append(order, f)
			}
			f.score += 1 / float64(RRFK+rank+1)
		}
	}
	if len(order) == 0 {
		return nil
	}

	maxScore := float64(len(lists)) / float64(RRFK+1)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})

	out := make([]Result, len(order))
	for i, f := range order {
		r := f.result
		r.Score = round4(clamp01(f.score / maxScore))
		r.SearchType = SearchTypeHybrid
		out[i] = r
	}
	return out
}
