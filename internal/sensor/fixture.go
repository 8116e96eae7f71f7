package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
)

// fixtureFrame is the on-disk shape of one recorded frame:
// {"cells": [[radius, angle], ...]}.
type fixtureFrame struct {
	Cells [][2]int `json:"cells"`
}

// FixtureSource replays recorded frames in order, starting over after the
// last one. It backs dev mode and tests.
type FixtureSource struct {
	mu     sync.Mutex
	frames []Frame
	next   int
}

// NewFixtureSource replays frames. With no frames every Scan reports
// ErrNoData.
func NewFixtureSource(frames ...Frame) *FixtureSource {
	return &FixtureSource{frames: frames}
}

// ParseFixture decodes a JSON fixture document.
func ParseFixture(data []byte) ([]Frame, error) {
	var raw []fixtureFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture JSON: %w", err)
	}

	frames := make([]Frame, len(raw))
	for i, f := range raw {
		cells := make([]grid.Cell, len(f.Cells))
		for j, c := range f.Cells {
			cells[j] = grid.Cell{Radius: c[0], Angle: c[1]}
		}
		frames[i] = Frame{Cells: cells, NoData: len(cells) == 0}
	}
	return frames, nil
}

// LoadFixture reads a fixture file into a FixtureSource.
func LoadFixture(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	frames, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	diagf("loaded %d fixture frames from %s", len(frames), path)
	return NewFixtureSource(frames...), nil
}

// Len returns the number of recorded frames.
func (s *FixtureSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Scan returns the next recorded frame. Each call hands out its own copy of
// the cell list.
func (s *FixtureSource) Scan(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return Frame{NoData: true, Cells: []grid.Cell{}}, ErrNoData
	}

	f := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)

	out := Frame{
		Cells:   append([]grid.Cell{}, f.Cells...),
		NoData:  f.NoData,
		Partial: f.Partial,
	}
	if out.NoData {
		return out, ErrNoData
	}
	tracef("fixture frame: %d cells", len(out.Cells))
	return out, nil
}
