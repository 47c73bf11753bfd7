package utils

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // Test bucket sizes
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Test inverted bucket probe
		for maxIndex := 10; maxIndex < 300; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				bn, min, max := pm.GetBucket(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax)
			}
			bn, _, _ := pm.GetBucket(maxIndex)
			assert.Equal(t, -1, bn)
		}
	}
	{ // Offsets are a prefix sum, first buckets take the remainder
		pm := NewPartitionMap(5, 256)
		assert.Equal(t, []int{0, 52, 103, 154, 205, 256}, pm.Offsets())
	}
}

func TestMailBox(t *testing.T) {
	var (
		NP = 4
		mb = NewMailBox[int](NP, 0)
		wg sync.WaitGroup
	)
	received := make([][]int, NP)
	wg.Add(NP)
	for n := 0; n < NP; n++ {
		go func(myThread int) {
			defer wg.Done()
			mb.PostMessageToAll(myThread, myThread)
			mb.PostMessage(myThread, (myThread+1)%NP, 100+myThread)
			mb.DeliverMyMessages(myThread)
			for mb.ReceiveMsgQs[myThread].Len() < NP {
				mb.WaitMyMessages(myThread)
			}
			received[myThread] = append(received[myThread], mb.ReceiveMsgQs[myThread].Cells()...)
			mb.ClearMyMessages(myThread)
		}(n)
	}
	wg.Wait()
	for n := 0; n < NP; n++ {
		prev := (n + NP - 1) % NP
		assert.Len(t, received[n], NP)
		assert.Contains(t, received[n], 100+prev)
		assert.NotContains(t, received[n], n)
	}
}

func TestSets(t *testing.T) {
	{
		assert.Equal(t, []int{1, 2, 5}, SortedUnique([]int{5, 1, 2, 5, 1}))
		assert.Equal(t, []int{1, 3, 4}, SetInsert([]int{1, 4}, 3))
		assert.Equal(t, []int{1, 4}, SetInsert([]int{1, 4}, 4))
		assert.True(t, SetContains([]int{1, 4, 9}, 9))
		assert.False(t, SetContains([]int{1, 4, 9}, 3))
	}
	{
		a, b := []int{1, 3, 5, 7}, []int{3, 4, 5}
		assert.Equal(t, []int{1, 3, 4, 5, 7}, SetUnion(a, b))
		assert.Equal(t, []int{3, 5}, SetIntersection(a, b))
		assert.Equal(t, []int{1, 7}, SetDifference(a, b))
		assert.Nil(t, SetIntersection(a, nil))
	}
	{
		assert.Equal(t, []int{0, 2, 5, 5}, PrefixSum([]int{2, 3, 0}))
	}
}
