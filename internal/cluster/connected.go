package cluster

import (
	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/polar"
)

type connectedClusterer struct{}

func (connectedClusterer) Mode() Mode { return ModeConnected }

// Cluster labels true connected components. Labels are 0-based, contiguous
// and numbered by each component's first cell in scan order. Output order
// matches the two-pass clusterer (angle-sorted, stable).
func (connectedClusterer) Cluster(cells []grid.Cell) []DetectionPoint {
	points := newPoints(cells)
	if len(points) == 0 {
		return points
	}

	index := make(map[grid.Cell]int, len(cells))
	for i, c := range cells {
		index[c] = i
	}

	ds := newDisjointSet(len(cells))
	for i, c := range cells {
		for dr := -1; dr <= 1; dr++ {
			for da := -1; da <= 1; da++ {
				if dr == 0 && da == 0 {
					continue
				}
				n := grid.Cell{Radius: c.Radius + dr, Angle: polar.WrapIndex(c.Angle + da)}
				if j, ok := index[n]; ok {
					ds.union(i, j)
				}
			}
		}
	}

	labels := make(map[int]int)
	for i := range points {
		root := ds.find(i)
		id, ok := labels[root]
		if !ok {
			id = len(labels)
			labels[root] = id
		}
		points[i].GroupID = id
	}

	sortByAngle(points)
	return points
}

// disjointSet is a union-find with path halving and union by size.
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), size: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

func (ds *disjointSet) find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	if ds.size[ra] < ds.size[rb] {
		ra, rb = rb, ra
	}
	ds.parent[rb] = ra
	ds.size[ra] += ds.size[rb]
}
