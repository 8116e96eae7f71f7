package cluster

import "github.com/OpenSourceIronman/BikeRADAR/internal/grid"

type twoPassClusterer struct{}

func (twoPassClusterer) Mode() Mode { return ModeTwoPass }

// Cluster walks the cells in scan order, giving each point the previous
// point's group when the two are adjacent and a fresh group otherwise. It
// then re-sorts by angle and walks again, pulling adjacent points into the
// group of their predecessor. Labels are not renumbered, so gaps are
// expected.
func (twoPassClusterer) Cluster(cells []grid.Cell) []DetectionPoint {
	points := newPoints(cells)
	if len(points) == 0 {
		return points
	}

	next := 0
	points[0].GroupID = next
	for i := 1; i < len(points); i++ {
		if Adjacent(points[i-1].Cell(), points[i].Cell()) {
			points[i].GroupID = points[i-1].GroupID
		} else {
			next++
			points[i].GroupID = next
		}
	}

	sortByAngle(points)
	for i := 1; i < len(points); i++ {
		if Adjacent(points[i-1].Cell(), points[i].Cell()) {
			points[i].GroupID = points[i-1].GroupID
		}
	}
	return points
}
