package utils

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// SortedUnique sorts s in place and drops duplicates.
func SortedUnique[T constraints.Ordered](s []T) []T {
	slices.Sort(s)
	return slices.Compact(s)
}

// SetInsert inserts v into the sorted set s.
func SetInsert[T constraints.Ordered](s []T, v T) []T {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}

func SetContains[T constraints.Ordered](s []T, v T) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}

// SetUnion merges two sorted sets.
func SetUnion[T constraints.Ordered](a, b []T) (u []T) {
	u = make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			u = append(u, a[i])
			i++
		case b[j] < a[i]:
			u = append(u, b[j])
			j++
		default:
			u = append(u, a[i])
			i++
			j++
		}
	}
	u = append(u, a[i:]...)
	return append(u, b[j:]...)
}

// SetIntersection returns the elements common to two sorted sets.
func SetIntersection[T constraints.Ordered](a, b []T) (x []T) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case b[j] < a[i]:
			j++
		default:
			x = append(x, a[i])
			i++
			j++
		}
	}
	return
}

// SetDifference returns the elements of sorted a missing from sorted b.
func SetDifference[T constraints.Ordered](a, b []T) (d []T) {
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j < len(b) && b[j] == v {
			continue
		}
		d = append(d, v)
	}
	return
}

// PrefixSum turns counts into len(counts)+1 offsets.
func PrefixSum[T constraints.Integer](counts []T) (offsets []T) {
	offsets = make([]T, len(counts)+1)
	for i, c := range counts {
		offsets[i+1] = offsets[i] + c
	}
	return
}
