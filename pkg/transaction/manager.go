// Package transaction runs half-duplex request/response exchanges over a
// hardware.Port: one frame out, one terminated frame back, with bounded
// retries on timeout and at most one exchange in flight.
package transaction

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twinj/uuid"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/hardware"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/verbose"
)

// Defaults used when Options leaves a value zero.
const (
	DefaultTimeout    = 500 * time.Millisecond
	DefaultMaxRetries = 2
	DefaultReadSize   = 64
)

// Options configures a Manager.
type Options struct {
	Terminator byte
	Timeout    time.Duration
	MaxRetries int
	ReadSize   int
	// OnTransition, when set, is called for every state change. It runs on
	// the caller's goroutine with the manager lock held and must not call
	// back into the Manager.
	OnTransition func(Transition)
}

// Request is one exchange.
type Request struct {
	Frame []byte
	// Terminator, Timeout and MaxRetries override the manager defaults
	// when non-zero. MaxRetries below zero means no retries.
	Terminator byte
	Timeout    time.Duration
	MaxRetries int
	// DiscardEcho skips a reply identical to Frame, as sent back by
	// interfaces with local echo.
	DiscardEcho bool
	// NoReply writes Frame and returns without reading.
	NoReply bool
	// KeepInput skips the flush of unread input, for an exchange that
	// follows up on the one before it and must see its late replies.
	KeepInput bool
	// ReadOnly reads one frame without writing Frame, which is only used
	// to match echoes. It is never retried.
	ReadOnly bool
}

// Reply is the frame that completed an exchange.
type Reply struct {
	ID       string
	Frame    []byte
	Attempts int
	Elapsed  time.Duration
}

// Manager serialises exchanges on a port.
type Manager struct {
	port hardware.Port
	opts Options

	mutex   sync.Mutex
	buffer  []byte
	closed  chan struct{}
	closing sync.Once
}

// NewManager takes ownership of port.
func NewManager(port hardware.Port, opts Options) *Manager {
	if opts.Terminator == 0 {
		opts.Terminator = cat.Terminator
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	return &Manager{
		port:   port,
		opts:   opts,
		closed: make(chan struct{}),
	}
}

// Options returns the effective options.
func (m *Manager) Options() Options {
	return m.opts
}

// Execute writes req.Frame and waits for a terminated reply. Concurrent
// callers queue behind the one in flight. A timeout is retried; any other
// failure is returned at once.
func (m *Manager) Execute(req Request) (*Reply, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	verb := frameVerb(req.Frame)
	t := &tracker{id: uuid.NewV4().String(), verb: verb, hook: m.opts.OnTransition}
	log := logging.WithFields(map[string]interface{}{"id": t.id, "verb": verb})

	if m.isClosed() {
		t.move(StateClosed)
		t.move(StateFailed)
		return nil, &cat.Error{Kind: cat.ErrClosed, Verb: verb, Detail: "transaction manager closed"}
	}

	terminator := m.opts.Terminator
	if req.Terminator != 0 {
		terminator = req.Terminator
	}
	timeout := m.opts.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	retries := m.opts.MaxRetries
	switch {
	case req.ReadOnly, req.MaxRetries < 0:
		retries = 0
	case req.MaxRetries > 0:
		retries = req.MaxRetries
	}

	start := time.Now()
	if !req.KeepInput {
		m.discardLeftover(verb)
	}

	for attempt := 1; attempt <= retries+1; attempt++ {
		if attempt > 1 {
			t.move(StateRetry)
			log.Debugf("transaction", "retrying, attempt %d", attempt)
		}

		if !req.ReadOnly {
			if err := m.write(req.Frame); err != nil {
				t.move(StateClosed)
				t.move(StateFailed)
				return nil, m.ioError(verb, attempt, err)
			}
			t.move(StateSent)
		}

		if req.NoReply {
			t.move(StateMatched)
			t.move(StateIdle)
			return &Reply{ID: t.id, Attempts: attempt, Elapsed: time.Since(start)}, nil
		}

		t.move(StateAwaitingResponse)
		frame, err := m.readFrame(terminator, timeout, req)
		if err != nil {
			t.move(StateClosed)
			t.move(StateFailed)
			return nil, m.ioError(verb, attempt, err)
		}
		if frame != nil {
			t.move(StateMatched)
			t.move(StateIdle)
			return &Reply{ID: t.id, Frame: frame, Attempts: attempt, Elapsed: time.Since(start)}, nil
		}

		t.move(StateTimedOut)
		// a partial frame must not leak into the next attempt
		m.buffer = m.buffer[:0]
	}

	t.move(StateFailed)
	log.Warnf("transaction", "no reply after %d attempt(s)", retries+1)
	return nil, &cat.Error{
		Kind:     cat.ErrTimeout,
		Verb:     verb,
		Attempts: retries + 1,
		Detail:   fmt.Sprintf("no terminated reply within %v", timeout),
	}
}

// readFrame accumulates bytes until a terminator arrives. It returns a nil
// frame and nil error when timeout elapses first.
func (m *Manager) readFrame(terminator byte, timeout time.Duration, req Request) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		for {
			i := bytes.IndexByte(m.buffer, terminator)
			if i < 0 {
				break
			}
			frame := append([]byte(nil), m.buffer[:i+1]...)
			m.buffer = append(m.buffer[:0], m.buffer[i+1:]...)
			verbose.Frame("RX", frame)

			if req.DiscardEcho && bytes.Equal(frame, req.Frame) {
				continue
			}
			return frame, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		chunk, err := m.port.Read(m.opts.ReadSize, remaining)
		if err != nil {
			return nil, err
		}
		m.buffer = append(m.buffer, chunk...)
	}
}

func (m *Manager) write(frame []byte) error {
	verbose.Frame("TX", frame)
	for len(frame) > 0 {
		n, err := m.port.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// discardLeftover drops bytes still buffered from an earlier exchange,
// such as a reply that arrived after its transaction timed out.
func (m *Manager) discardLeftover(verb string) {
	if len(m.buffer) > 0 {
		logging.Debug("transaction", "discarding stale bytes", map[string]interface{}{
			"verb": verb, "bytes": fmt.Sprintf("%q", m.buffer),
		})
		m.buffer = m.buffer[:0]
	}
	if f, ok := m.port.(hardware.InputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			logging.Debugf("transaction", "input flush failed: %v", err)
		}
	}
}

func (m *Manager) ioError(verb string, attempt int, err error) error {
	detail := "I/O error"
	if m.isClosed() || errors.Is(err, hardware.ErrPortClosed) {
		detail = "port closed"
	}
	return &cat.Error{Kind: cat.ErrClosed, Verb: verb, Attempts: attempt, Detail: detail, Cause: err}
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Close closes the port. An exchange in flight fails with cat.ErrClosed;
// later calls to Execute fail the same way. Close does not wait for the
// manager lock.
func (m *Manager) Close() error {
	var err error
	m.closing.Do(func() {
		close(m.closed)
		err = m.port.Close()
	})
	return err
}

func frameVerb(frame []byte) string {
	if len(frame) >= 2 {
		return string(frame[:2])
	}
	return string(frame)
}
