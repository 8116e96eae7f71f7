package grid

// Snapshot is an immutable copy of a grid's occupied cells, safe to share
// with readers while the grid moves on to the next cycle.
type Snapshot struct {
	MaxRadius int
	surfaces  [numSurfaces][]Cell
}

// Snapshot copies the occupied cells of every surface.
func (g *Grid) Snapshot() *Snapshot {
	snap := &Snapshot{MaxRadius: g.maxRadius}
	for _, s := range Surfaces {
		// Surfaces only holds valid values.
		points, _ := g.Points(s)
		snap.surfaces[s] = points
	}
	return snap
}

// Points returns a copy of the occupied cells of s, in scan order.
func (s *Snapshot) Points(surface Surface) ([]Cell, error) {
	if !surface.Valid() {
		return nil, ErrInvalidSurface
	}
	out := make([]Cell, len(s.surfaces[surface]))
	copy(out, s.surfaces[surface])
	return out, nil
}

// Count returns the number of occupied cells of surface, or 0 for an
// invalid surface.
func (s *Snapshot) Count(surface Surface) int {
	if !surface.Valid() {
		return 0
	}
	return len(s.surfaces[surface])
}
