package objects

import "github.com/OpenSourceIronman/BikeRADAR/internal/cluster"

// Aggregate builds one StationaryObject per group label present in points,
// in ascending label order. Points keep the order they were emitted in and
// the outline is defined once all members are added. Labels that do not
// occur are skipped, as are Unassigned points. Never returns nil.
func Aggregate(points []cluster.DetectionPoint) []StationaryObject {
	maxGroup := cluster.Unassigned
	for _, p := range points {
		if p.GroupID > maxGroup {
			maxGroup = p.GroupID
		}
	}
	if maxGroup == cluster.Unassigned {
		return []StationaryObject{}
	}

	byGroup := make([][]cluster.DetectionPoint, maxGroup+1)
	for _, p := range points {
		if p.GroupID < 0 {
			continue
		}
		byGroup[p.GroupID] = append(byGroup[p.GroupID], p)
	}

	out := make([]StationaryObject, 0, len(byGroup))
	for gid, members := range byGroup {
		if len(members) == 0 {
			continue
		}
		obj := StationaryObject{ID: len(out), GroupID: gid}
		for _, p := range members {
			obj.AddPoint(p.Radius, p.Angle)
		}
		obj.DefineOutline()
		out = append(out, obj)
	}
	return out
}

// PointCount sums the member points across objs.
func PointCount(objs []StationaryObject) int {
	n := 0
	for _, o := range objs {
		n += len(o.Points)
	}
	return n
}
