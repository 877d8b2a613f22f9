package annotate

import "math"

// Simplify runs Ramer-Douglas-Peucker over a path, keeping every point
// whose perpendicular distance from the simplified chord exceeds tolerance
// (level-0 pixels). A path of >= 3 points returns at most the original
// count and never fewer than 2; a straight line collapses to its endpoints.
func Simplify(path []Pt, tolerance float64) []Pt {
	if len(path) <= 2 {
		out := make([]Pt, len(path))
		copy(out, path)
		return out
	}
	keep := make([]bool, len(path))
	keep[0] = true
	keep[len(path)-1] = true
	rdp(path, 0, len(path)-1, tolerance, keep)

	out := make([]Pt, 0, len(path))
	for i, k := range keep {
		if k {
			out = append(out, path[i])
		}
	}
	return out
}

func rdp(path []Pt, lo, hi int, tolerance float64, keep []bool) {
	if hi <= lo+1 {
		return
	}
	maxDist := 0.0
	maxIdx := -1
	for i := lo + 1; i < hi; i++ {
		if d := perpDistance(path[i], path[lo], path[hi]); d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxIdx >= 0 && maxDist > tolerance {
		keep[maxIdx] = true
		rdp(path, lo, maxIdx, tolerance, keep)
		rdp(path, maxIdx, hi, tolerance, keep)
	}
}

// perpDistance is the distance from p to the segment a-b.
func perpDistance(p, a, b Pt) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	len2 := dx*dx + dy*dy
	if len2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	// Project onto the segment, clamped to its ends.
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// PointInPolygon tests containment by ray casting: count crossings of a
// horizontal ray from p against the polygon's edges.
func PointInPolygon(p Pt, poly []Pt) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// nearestVertex returns the index of the vertex within hitRadius of p, or
// -1 when none qualifies.
func nearestVertex(p Pt, poly []Pt, hitRadius float64) int {
	best := -1
	bestDist := hitRadius
	for i, v := range poly {
		if d := math.Hypot(v.X-p.X, v.Y-p.Y); d <= bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}
