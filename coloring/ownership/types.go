// Package ownership classifies the entities of a rank into exclusive, shared
// and ghost sets and records which ranks each rank communicates with.
package ownership

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/gohalo/utils"
)

// ErrInconsistent reports colorings or ownerships that contradict each other
// across ranks.
var ErrInconsistent = errors.New("inconsistent coloring data")

// EntityInfo describes one entity as seen by a rank.
type EntityInfo struct {
	ID     int   // Global id
	Rank   int   // Owning rank
	Offset int   // Owner-local offset, for ghosts the owner's shared offset after Remap
	Shared []int // Ranks that ghost this entity, shared entities only
}

// Kind is the ownership class of an entity on a rank.
type Kind uint8

const (
	Exclusive Kind = iota
	Shared
	Ghost
)

func (k Kind) String() string {
	switch k {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	case Ghost:
		return "ghost"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IndexColoring is the per-rank coloring of one index space. The three sets
// are disjoint and sorted by global id.
type IndexColoring struct {
	Exclusive   []EntityInfo
	Shared      []EntityInfo
	Ghost       []EntityInfo
	SharedUsers []int // Ranks ghosting any of our shared entities
	GhostOwners []int // Ranks owning any of our ghosts
}

// ColoringInfo holds the sizes and communication peers of an IndexColoring.
type ColoringInfo struct {
	Exclusive   int   `json:"exclusive"`
	Shared      int   `json:"shared"`
	Ghost       int   `json:"ghost"`
	SharedUsers []int `json:"shared_users"`
	GhostOwners []int `json:"ghost_owners"`
}

func (ci ColoringInfo) Primary() int { return ci.Exclusive + ci.Shared }
func (ci ColoringInfo) Total() int   { return ci.Exclusive + ci.Shared + ci.Ghost }

func (ic *IndexColoring) Info() ColoringInfo {
	return ColoringInfo{
		Exclusive:   len(ic.Exclusive),
		Shared:      len(ic.Shared),
		Ghost:       len(ic.Ghost),
		SharedUsers: append([]int{}, ic.SharedUsers...),
		GhostOwners: append([]int{}, ic.GhostOwners...),
	}
}

func (ic *IndexColoring) set(k Kind) []EntityInfo {
	switch k {
	case Exclusive:
		return ic.Exclusive
	case Shared:
		return ic.Shared
	default:
		return ic.Ghost
	}
}

// Lookup finds gid in the coloring. The returned index is the position inside
// the set of the returned kind.
func (ic *IndexColoring) Lookup(gid int) (info EntityInfo, kind Kind, index int, ok bool) {
	for _, k := range []Kind{Exclusive, Shared, Ghost} {
		set := ic.set(k)
		i := sort.Search(len(set), func(i int) bool { return set[i].ID >= gid })
		if i < len(set) && set[i].ID == gid {
			return set[i], k, i, true
		}
	}
	return EntityInfo{}, 0, -1, false
}

func (ic *IndexColoring) Contains(gid int) bool {
	_, _, _, ok := ic.Lookup(gid)
	return ok
}

// IDs returns the global ids of a set in storage order.
func (ic *IndexColoring) IDs(k Kind) []int {
	set := ic.set(k)
	ids := make([]int, len(set))
	for i, e := range set {
		ids[i] = e.ID
	}
	return ids
}

// Primary returns the sorted ids of the exclusive and shared entities.
func (ic *IndexColoring) Primary() []int {
	return utils.SetUnion(ic.IDs(Exclusive), ic.IDs(Shared))
}

// Intersection returns the sorted common elements of a and b, which need not
// be sorted.
func Intersection(a, b []int) []int {
	return utils.SetIntersection(utils.SortedUnique(append([]int{}, a...)),
		utils.SortedUnique(append([]int{}, b...)))
}

func sortByID(set []EntityInfo) {
	sort.Slice(set, func(i, j int) bool { return set[i].ID < set[j].ID })
}
