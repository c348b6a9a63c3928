package retrieval

import (
	"math"
	"strings"
)

const (
	exactMatchBonus = 0.3
	highRatioBonus  = 0.1
	highRatio       = 0.8
	lowRatioFactor  = 0.9
)

// Score 计算内容与查询的相似度，取值 [0,1]。
// 基础分为命中词项占比；整句（去空白）出现在内容中时加 0.3，
// 否则占比 >= 0.8 时加 0.1，其余乘以 0.9。
func Score(query string, terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matches := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matches++
		}
	}
	base := float64(matches) / float64(len(terms))

	var score float64
	q := compact(query)
	switch {
	case q != "" && strings.Contains(compact(content), q):
		score = base + exactMatchBonus
	case base >= highRatio:
		score = base + highRatioBonus
	default:
		score = base * lowRatioFactor
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
