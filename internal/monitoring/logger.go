// Package monitoring holds the process-wide diagnostic logger that the
// binary and the persistence layer report through.
package monitoring

import (
	"bytes"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Writer adapts Logf to an io.Writer so per-package stream loggers can be
// pointed at it. Each complete line becomes one Logf call, prefixed with
// the writer's tag.
type Writer struct {
	mu  sync.Mutex
	tag string
	buf bytes.Buffer
}

// NewWriter returns a Writer that tags every line with tag.
func NewWriter(tag string) *Writer {
	return &Writer{tag: tag}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		Logf("%s%s", w.tag, line[:len(line)-1])
	}
	return len(p), nil
}
