package semantic

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, 0 if either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Rank scores points against query and returns the best top, highest first.
func Rank(points []Point, query []float32, top int) []ScoredPoint {
	scored := make([]ScoredPoint, len(points))
	for i, p := range points {
		scored[i] = ScoredPoint{Point: p, Score: Cosine(query, p.Vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if top >= 0 && len(scored) > top {
		scored = scored[:top]
	}
	return scored
}
