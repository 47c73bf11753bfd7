package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetHelpers(t *testing.T) {
	assert.Equal(t, []int{1, 3, 5}, SortedUnique([]int{5, 1, 3, 1, 5}))
	assert.Equal(t, []int{1, 2, 3}, SetInsert([]int{1, 3}, 2))
	assert.Equal(t, []int{1, 3}, SetInsert([]int{1, 3}, 3))
	assert.Equal(t, []int{4}, SetInsert([]int(nil), 4))
	assert.True(t, SetContains([]int{2, 4, 6}, 4))
	assert.False(t, SetContains([]int{2, 4, 6}, 5))

	a, b := []int{1, 2, 4, 7}, []int{2, 3, 7, 9}
	assert.Equal(t, []int{1, 2, 3, 4, 7, 9}, SetUnion(a, b))
	assert.Equal(t, []int{2, 7}, SetIntersection(a, b))
	assert.Equal(t, []int{1, 4}, SetDifference(a, b))
	assert.Equal(t, []int{3, 9}, SetDifference(b, a))
	assert.Empty(t, SetIntersection([]int{1}, []int{2}))
	assert.Equal(t, a, SetUnion(a, nil))

	assert.Equal(t, []int{0, 3, 3, 5}, PrefixSum([]int{3, 0, 2}))
	assert.Equal(t, []uint32{0}, PrefixSum([]uint32(nil)))
}
