package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

var (
	// ErrWriteFailed wraps failures sending the scan trigger.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrClosed is returned by Scan once the source has been closed,
	// including a Scan that was blocked in a read when Close ran.
	ErrClosed = errors.New("serial source closed")
)

// SerialSource reads frames from a serial port. When a scan command is set
// it is written before every frame to trigger a revolution.
type SerialSource struct {
	// scanMu serialises Scan calls. Close never takes it, so it can close
	// the port under a Scan blocked in a read.
	scanMu  sync.Mutex
	port    SerialPorter
	dec     *FrameDecoder
	command string
	closed  atomic.Bool
}

// NewSerialSource wraps an open port.
func NewSerialSource(port SerialPorter, maxRadius int, command string) *SerialSource {
	return &SerialSource{
		port:    port,
		dec:     NewFrameDecoder(port, maxRadius),
		command: command,
	}
}

// OpenSerial opens path with go.bug.st/serial and returns a source reading
// maxRadius-ring frames from it.
func OpenSerial(path string, opts PortOptions, maxRadius int, command string) (*SerialSource, error) {
	port, err := openPort(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialSource(port, maxRadius, command), nil
}

// openPort is swapped out in tests.
var openPort SerialPortOpener = openRealPort

func openRealPort(path string, opts PortOptions) (SerialPorter, error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := norm.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if norm.ReadTimeout > 0 {
		if err := port.SetReadTimeout(norm.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}
	diagf("opened %s at %s", path, norm)
	return port, nil
}

// Scan triggers (when configured) and reads one frame. Cancellation is only
// observed before the read starts; a blocked read returns when the port's
// read timeout expires or when Close is called.
func (s *SerialSource) Scan(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if s.closed.Load() {
		return Frame{}, ErrClosed
	}

	if s.command != "" {
		if _, err := s.port.Write([]byte(s.command + "\n")); err != nil {
			if s.closed.Load() {
				return Frame{}, ErrClosed
			}
			opsf("scan trigger failed: %v", err)
			return Frame{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	}

	frame, err := s.dec.Decode()
	if err != nil && s.closed.Load() {
		return Frame{}, ErrClosed
	}
	if err != nil && !errors.Is(err, ErrNoData) {
		opsf("frame read failed: %v", err)
	}
	return frame, err
}

// Close closes the underlying port, which unblocks a Scan waiting on it.
// Only the first call closes the port.
func (s *SerialSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.port.Close()
}
