package hardware

import (
	"errors"
	"time"
)

// ErrPortClosed is returned by Port operations after Close.
var ErrPortClosed = errors.New("port closed")

// Port is the duplex byte stream the CAT engine talks through.
type Port interface {
	Write(p []byte) (int, error)
	// Read waits up to timeout for data and returns at most max bytes. It
	// returns an empty slice and a nil error when the timeout elapses.
	Read(max int, timeout time.Duration) ([]byte, error)
	Close() error
}

// InputFlusher is implemented by ports that can discard received bytes
// nobody has read yet.
type InputFlusher interface {
	ResetInputBuffer() error
}
