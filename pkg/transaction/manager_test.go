package transaction

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/hardware"
)

// scriptPort answers each write with the next scripted list of chunks. An
// empty script entry means silence for that write.
type scriptPort struct {
	mutex   sync.Mutex
	script  [][]string
	queue   [][]byte
	writes  []string
	flushes int
	closed  chan struct{}
	once    sync.Once
	failOn  error
}

func newScriptPort(script ...[]string) *scriptPort {
	return &scriptPort{script: script, closed: make(chan struct{})}
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	select {
	case <-p.closed:
		return 0, hardware.ErrPortClosed
	default:
	}
	if p.failOn != nil {
		return 0, p.failOn
	}
	p.writes = append(p.writes, string(b))
	if len(p.script) > 0 {
		for _, c := range p.script[0] {
			p.queue = append(p.queue, []byte(c))
		}
		p.script = p.script[1:]
	}
	return len(b), nil
}

func (p *scriptPort) Read(max int, timeout time.Duration) ([]byte, error) {
	p.mutex.Lock()
	if len(p.queue) > 0 {
		chunk := p.queue[0]
		if len(chunk) > max {
			p.queue[0] = chunk[max:]
			chunk = chunk[:max]
		} else {
			p.queue = p.queue[1:]
		}
		p.mutex.Unlock()
		return chunk, nil
	}
	p.mutex.Unlock()

	select {
	case <-p.closed:
		return nil, hardware.ErrPortClosed
	case <-time.After(timeout):
		return []byte{}, nil
	}
}

func (p *scriptPort) ResetInputBuffer() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.flushes++
	return nil
}

func (p *scriptPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *scriptPort) Writes() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.writes...)
}

func fastOptions() Options {
	return Options{Timeout: 30 * time.Millisecond, MaxRetries: 2}
}

func TestExecuteChunkedReply(t *testing.T) {
	port := newScriptPort([]string{"FA01", "4250", "000", ";"})
	m := NewManager(port, fastOptions())

	reply, err := m.Execute(Request{Frame: []byte("FA;")})
	require.NoError(t, err)
	assert.Equal(t, "FA014250000;", string(reply.Frame))
	assert.Equal(t, 1, reply.Attempts)
	assert.NotEmpty(t, reply.ID)
	assert.Equal(t, []string{"FA;"}, port.Writes())
}

func TestExecuteTimeoutRetriesBounded(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		port := newScriptPort()
		opts := fastOptions()
		opts.MaxRetries = retries
		m := NewManager(port, opts)

		_, err := m.Execute(Request{Frame: []byte("PC;")})
		require.Error(t, err)
		assert.ErrorIs(t, err, cat.ErrTimeout)

		var ce *cat.Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, retries+1, ce.Attempts)
		assert.Len(t, port.Writes(), retries+1, "one write per attempt")
	}
}

func TestExecuteRetryDiscardsPartial(t *testing.T) {
	port := newScriptPort(
		[]string{"FA0142"},
		[]string{"FA007078000;"},
	)
	m := NewManager(port, fastOptions())

	reply, err := m.Execute(Request{Frame: []byte("FA;")})
	require.NoError(t, err)
	assert.Equal(t, "FA007078000;", string(reply.Frame))
	assert.Equal(t, 2, reply.Attempts)
}

func TestExecuteDiscardsLeftover(t *testing.T) {
	// the first reply carries a trailing stray frame
	port := newScriptPort(
		[]string{"FA014250000;MD02;"},
		[]string{"PC1010;"},
	)
	m := NewManager(port, fastOptions())

	_, err := m.Execute(Request{Frame: []byte("FA;")})
	require.NoError(t, err)

	reply, err := m.Execute(Request{Frame: []byte("PC;")})
	require.NoError(t, err)
	assert.Equal(t, "PC1010;", string(reply.Frame))
	assert.Equal(t, 2, port.flushes)
}

func TestExecuteDiscardEcho(t *testing.T) {
	port := newScriptPort([]string{"MD0;", "MD02;"})
	m := NewManager(port, fastOptions())

	reply, err := m.Execute(Request{Frame: []byte("MD0;"), DiscardEcho: true})
	require.NoError(t, err)
	assert.Equal(t, "MD02;", string(reply.Frame))

	port = newScriptPort([]string{"MD0;", "MD02;"})
	m = NewManager(port, fastOptions())
	reply, err = m.Execute(Request{Frame: []byte("MD0;")})
	require.NoError(t, err)
	assert.Equal(t, "MD0;", string(reply.Frame))
}

func TestExecuteNoReply(t *testing.T) {
	port := newScriptPort()
	m := NewManager(port, fastOptions())

	start := time.Now()
	reply, err := m.Execute(Request{Frame: []byte("FA014250000;"), NoReply: true})
	require.NoError(t, err)
	assert.Nil(t, reply.Frame)
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestExecuteKeepInputSeesLateRefusal(t *testing.T) {
	// the refusal of the set arrives while the follow-up query is sent
	port := newScriptPort(
		[]string{"?;"},
		[]string{"TX0;"},
	)
	m := NewManager(port, fastOptions())

	_, err := m.Execute(Request{Frame: []byte("TX1;"), NoReply: true})
	require.NoError(t, err)

	reply, err := m.Execute(Request{Frame: []byte("TX;"), KeepInput: true})
	require.NoError(t, err)
	assert.Equal(t, "?;", string(reply.Frame))
	assert.Equal(t, 1, port.flushes, "follow-up must not flush")

	reply, err = m.Execute(Request{Frame: []byte("TX;"), KeepInput: true, ReadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "TX0;", string(reply.Frame))
	assert.Equal(t, []string{"TX1;", "TX;"}, port.Writes())
}

func TestExecuteReadOnlyNotRetried(t *testing.T) {
	port := newScriptPort()
	m := NewManager(port, Options{Timeout: 20 * time.Millisecond, MaxRetries: 3})

	_, err := m.Execute(Request{Frame: []byte("FA;"), ReadOnly: true})
	require.ErrorIs(t, err, cat.ErrTimeout)

	var ce *cat.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Attempts)
	assert.Empty(t, port.Writes())
}

func TestExecuteRequestOverrides(t *testing.T) {
	port := newScriptPort()
	m := NewManager(port, Options{Timeout: time.Second, MaxRetries: 5})

	start := time.Now()
	_, err := m.Execute(Request{Frame: []byte("ID;"), Timeout: 20 * time.Millisecond, MaxRetries: -1})
	assert.ErrorIs(t, err, cat.ErrTimeout)
	assert.Len(t, port.Writes(), 1)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecuteStateTransitions(t *testing.T) {
	var states []State
	port := newScriptPort(nil, []string{"FA014250000;"})
	opts := fastOptions()
	opts.OnTransition = func(tr Transition) {
		assert.Equal(t, "FA", tr.Verb)
		states = append(states, tr.To)
	}
	m := NewManager(port, opts)

	_, err := m.Execute(Request{Frame: []byte("FA;")})
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateSent, StateAwaitingResponse, StateTimedOut,
		StateRetry, StateSent, StateAwaitingResponse, StateMatched, StateIdle,
	}, states)

	states = nil
	opts.MaxRetries = 0
	m = NewManager(newScriptPort(), opts)
	_, err = m.Execute(Request{Frame: []byte("FA;")})
	require.Error(t, err)
	assert.Equal(t, []State{StateSent, StateAwaitingResponse, StateTimedOut, StateFailed}, states)
}

func TestCloseUnblocksPendingRead(t *testing.T) {
	port := newScriptPort()
	m := NewManager(port, Options{Timeout: 5 * time.Second})

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(Request{Frame: []byte("FA;")})
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, cat.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after Close")
	}

	_, err := m.Execute(Request{Frame: []byte("FA;")})
	assert.ErrorIs(t, err, cat.ErrClosed)
	assert.NoError(t, m.Close(), "second close is a no-op")
}

func TestIOErrorNotRetried(t *testing.T) {
	port := newScriptPort()
	port.failOn = errors.New("device unplugged")
	m := NewManager(port, fastOptions())

	_, err := m.Execute(Request{Frame: []byte("FA;")})
	assert.ErrorIs(t, err, cat.ErrClosed)

	var ce *cat.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Attempts)
}

func TestConcurrentCallersQueue(t *testing.T) {
	port := &overlapPort{reply: []byte("ID0840;")}
	m := NewManager(port, fastOptions())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := m.Execute(Request{Frame: []byte("ID;")})
			if assert.NoError(t, err) {
				assert.Equal(t, "ID0840;", string(reply.Frame))
			}
		}()
	}
	wg.Wait()

	assert.False(t, port.overlapped, "two exchanges were in flight at once")
	assert.Equal(t, 8, port.writes)
}

// overlapPort detects a write issued while an earlier reply is unread.
type overlapPort struct {
	mutex      sync.Mutex
	reply      []byte
	pending    bool
	overlapped bool
	writes     int
}

func (p *overlapPort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.pending {
		p.overlapped = true
	}
	p.pending = true
	p.writes++
	return len(b), nil
}

func (p *overlapPort) Read(max int, timeout time.Duration) ([]byte, error) {
	time.Sleep(time.Millisecond)
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.pending {
		return []byte{}, nil
	}
	p.pending = false
	return p.reply, nil
}

func (p *overlapPort) Close() error { return nil }
