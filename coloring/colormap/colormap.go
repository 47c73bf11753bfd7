// Package colormap spreads colors over processes and indices over colors.
// Both levels use a block distribution with the remainder on the leading
// blocks.
package colormap

import (
	"github.com/notargets/gohalo/utils"
)

type ColorMap struct {
	processes, colors, indices int
	colorsPerProcess           *utils.PartitionMap
	indicesPerColor            *utils.PartitionMap
}

// New panics unless processes and colors are positive.
func New(processes, colors, indices int) ColorMap {
	if processes < 1 || colors < 1 {
		panic("colormap: processes and colors must be positive")
	}
	return ColorMap{
		processes:        processes,
		colors:           colors,
		indices:          indices,
		colorsPerProcess: utils.NewPartitionMap(processes, colors),
		indicesPerColor:  utils.NewPartitionMap(colors, indices),
	}
}

func (cm ColorMap) DomainSize() int   { return cm.indices }
func (cm ColorMap) NumColors() int    { return cm.colors }
func (cm ColorMap) NumProcesses() int { return cm.processes }

// Colors is the number of colors held by process p.
func (cm ColorMap) Colors(p int) int { return cm.colorsPerProcess.GetBucketDimension(p) }

// ColorOffset is the first color held by process p.
func (cm ColorMap) ColorOffset(p int) int {
	lo, _ := cm.colorsPerProcess.GetBucketRange(p)
	return lo
}

func (cm ColorMap) Process(color int) int {
	p, _, _ := cm.colorsPerProcess.GetBucket(color)
	return p
}

// Indices is the number of indices in color.
func (cm ColorMap) Indices(color int) int { return cm.indicesPerColor.GetBucketDimension(color) }

func (cm ColorMap) IndexOffset(color int) int {
	lo, _ := cm.indicesPerColor.GetBucketRange(color)
	return lo
}

// IndexColor returns the color holding index i, -1 when i is out of range.
func (cm ColorMap) IndexColor(i int) int {
	c, _, _ := cm.indicesPerColor.GetBucket(i)
	return c
}

// Distribution returns the processes+1 prefix sums of indices per process.
func (cm ColorMap) Distribution() []int {
	dist := make([]int, cm.processes+1)
	for p := 0; p < cm.processes; p++ {
		first := cm.ColorOffset(p) + cm.Colors(p)
		if first < cm.colors {
			dist[p+1] = cm.IndexOffset(first)
		} else {
			dist[p+1] = cm.indices
		}
	}
	return dist
}
