package vector

import (
	"sort"
	"strconv"
)

// SortResults orders results by ascending distance. Equal distances keep
// insertion order, which for numeric ids means the lower id first.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}

		return lessID(results[i].ID, results[j].ID)
	})
}

func lessID(a, b string) bool {
	x, errX := strconv.Atoi(a)
	y, errY := strconv.Atoi(b)

	switch {
	case errX == nil && errY == nil:
		return x < y
	case errX == nil:
		return true
	case errY == nil:
		return false
	default:
		return a < b
	}
}
