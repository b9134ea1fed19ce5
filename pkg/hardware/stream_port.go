package hardware

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dougsko/ftxcat/pkg/verbose"
)

// StreamPortChunkSize is the largest read the background reader issues.
const StreamPortChunkSize = 256

// StreamPort adapts any io.ReadWriteCloser (a network serial server, the
// emulator) into a Port with read timeouts. A background goroutine reads
// the stream and hands chunks to Read.
type StreamPort struct {
	stream io.ReadWriteCloser

	chunks  chan []byte
	pending []byte

	done      chan struct{}
	failed    chan struct{}
	closeOnce sync.Once

	mutex   sync.Mutex
	readErr error
}

// NewStreamPort starts reading stream.
func NewStreamPort(stream io.ReadWriteCloser) *StreamPort {
	p := &StreamPort{
		stream: stream,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
	go p.reader()
	return p
}

// DialTCP connects to a network serial server such as ser2net.
func DialTCP(addr string, timeout time.Duration) (*StreamPort, error) {
	verbose.Printf("Stream: dialing %s", addr)

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewStreamPort(conn), nil
}

func (p *StreamPort) reader() {
	buf := make([]byte, StreamPortChunkSize)
	for {
		n, err := p.stream.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case p.chunks <- chunk:
			case <-p.done:
				return
			}
		}
		if err != nil {
			p.mutex.Lock()
			p.readErr = err
			p.mutex.Unlock()
			close(p.failed)
			return
		}
	}
}

// Write sends b to the stream.
func (p *StreamPort) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, ErrPortClosed
	default:
	}
	return p.stream.Write(b)
}

// Read waits up to timeout for at most max bytes.
func (p *StreamPort) Read(max int, timeout time.Duration) ([]byte, error) {
	select {
	case <-p.done:
		return nil, ErrPortClosed
	default:
	}

	if len(p.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case chunk := <-p.chunks:
			p.pending = chunk
		case <-p.done:
			return nil, ErrPortClosed
		case <-p.failed:
			// hand out what the reader queued before it failed
			select {
			case chunk := <-p.chunks:
				p.pending = chunk
			default:
				return nil, p.err()
			}
		case <-timer.C:
			return []byte{}, nil
		}
	}

	n := max
	if n > len(p.pending) {
		n = len(p.pending)
	}
	out := p.pending[:n]
	p.pending = p.pending[n:]
	return out, nil
}

// ResetInputBuffer drops everything received and not yet read.
func (p *StreamPort) ResetInputBuffer() error {
	p.pending = nil
	for {
		select {
		case <-p.chunks:
		default:
			return nil
		}
	}
}

// Close stops the reader and closes the stream. It unblocks a pending
// Read.
func (p *StreamPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.stream.Close()
	})
	return err
}

func (p *StreamPort) err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.readErr == io.EOF {
		return ErrPortClosed
	}
	return p.readErr
}
