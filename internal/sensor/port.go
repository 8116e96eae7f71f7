package sensor

import (
	"io"
	"time"
)

// SerialPorter is the minimal interface a scan port needs. It lets the
// serial source run against test doubles without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support read timeouts.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortOpener opens a port; OpenSerial uses go.bug.st/serial and tests
// swap in a double.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
