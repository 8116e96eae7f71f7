// Package sensor reads scan frames from the rotating range sensor, either a
// real serial port or recorded fixtures.
package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
)

// ErrNoData reports that the source had nothing to deliver this cycle. It is
// a signal, not a failure: the cycle runs with an empty current surface.
var ErrNoData = errors.New("sensor: no scan data")

// Occupied is the cell byte that marks an occupied cell. Any other cell
// byte means free.
const Occupied = '1'

// Frame is one revolution of the sensor.
type Frame struct {
	// Cells holds the occupied cells in scan order.
	Cells []grid.Cell `json:"cells"`
	// NoData is set when the source produced nothing.
	NoData bool `json:"no_data,omitempty"`
	// Partial is set when the stream ended mid-frame.
	Partial bool `json:"partial,omitempty"`
}

// Source produces one frame per call.
type Source interface {
	Scan(ctx context.Context) (Frame, error)
}

// errReadIdle reports a read that returned nothing and no error, which is
// how go.bug.st/serial signals an expired read timeout.
var errReadIdle = errors.New("sensor: read timed out")

// idleReader turns empty reads into errReadIdle so bufio does not spin on
// them and give up with io.ErrNoProgress.
type idleReader struct {
	r io.Reader
}

func (ir idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, errReadIdle
	}
	return n, err
}

// FrameDecoder reads byte-per-cell frames: maxRadius*360 cell bytes, radius
// major then angle, then a line break. Line breaks, spaces and tabs between
// cells are skipped.
type FrameDecoder struct {
	r         *bufio.Reader
	maxRadius int
	// resync is set after a partial frame. The next Decode discards input
	// through the next line break so a late tail is not read as a new frame.
	resync bool
}

// NewFrameDecoder returns a decoder for a grid of maxRadius rings.
func NewFrameDecoder(r io.Reader, maxRadius int) *FrameDecoder {
	return &FrameDecoder{r: bufio.NewReader(idleReader{r: r}), maxRadius: maxRadius}
}

// endOfInput reports whether err means the source has nothing more to give
// right now, as opposed to a failing port.
func endOfInput(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, errReadIdle) || errors.Is(err, io.ErrNoProgress)
}

// CellsPerFrame is the number of cell bytes in a full frame.
func (d *FrameDecoder) CellsPerFrame() int {
	return d.maxRadius * grid.AngleBins
}

// Decode reads the next frame. End of input or a read timeout before the
// first cell yields ErrNoData; either one inside a frame yields a Partial
// frame holding the cells read so far.
func (d *FrameDecoder) Decode() (Frame, error) {
	frame := Frame{Cells: []grid.Cell{}}
	total := d.CellsPerFrame()

	if d.resync {
		if err := d.skipLine(); err != nil {
			if endOfInput(err) {
				frame.NoData = true
				return frame, ErrNoData
			}
			return frame, fmt.Errorf("resync: %w", err)
		}
		d.resync = false
	}

	for i := 0; i < total; i++ {
		b, err := d.nextCell()
		if err != nil {
			if endOfInput(err) {
				if i == 0 {
					frame.NoData = true
					return frame, ErrNoData
				}
				frame.Partial = true
				d.resync = true
				opsf("partial frame: input stopped after %d of %d cells: %v", i, total, err)
				return frame, nil
			}
			return frame, fmt.Errorf("read cell %d: %w", i, err)
		}
		if b == Occupied {
			frame.Cells = append(frame.Cells, grid.Cell{
				Radius: i / grid.AngleBins,
				Angle:  i % grid.AngleBins,
			})
		}
	}

	tracef("frame decoded: %d occupied cells", len(frame.Cells))
	return frame, nil
}

// skipLine discards bytes up to and including the next '\n'.
func (d *FrameDecoder) skipLine() error {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if b == '\n' {
			return nil
		}
	}
}

func (d *FrameDecoder) nextCell() (byte, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case '\r', '\n', ' ', '\t':
			continue
		}
		return b, nil
	}
}

// EncodeFrame writes cells as a full byte-per-cell frame followed by a
// newline. It is the inverse of Decode and is used by fixtures and tests.
func EncodeFrame(w io.Writer, maxRadius int, cells []grid.Cell) error {
	buf := make([]byte, maxRadius*grid.AngleBins+1)
	for i := range buf {
		buf[i] = '0'
	}
	buf[len(buf)-1] = '\n'
	for _, c := range cells {
		if c.Radius < 0 || c.Radius >= maxRadius || c.Angle < 0 || c.Angle >= grid.AngleBins {
			return fmt.Errorf("%w: cell %s outside %d rings", grid.ErrInvalidIndex, c, maxRadius)
		}
		buf[c.Radius*grid.AngleBins+c.Angle] = Occupied
	}
	_, err := w.Write(buf)
	return err
}
