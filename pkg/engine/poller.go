package engine

import (
	"context"
	"errors"
	"time"

	"github.com/twinj/uuid"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/protocol"
)

// SubscriberChannelSize is the buffer of each subscriber channel. A
// subscriber that falls this far behind misses snapshots.
const SubscriberChannelSize = 16

// Subscriber identifies a state subscription
type Subscriber uuid.UUID

// Subscribe registers interest in state snapshots
func (e *CoreEngine) Subscribe() (Subscriber, <-chan protocol.Snapshot) {
	c := make(chan protocol.Snapshot, SubscriberChannelSize)
	id := Subscriber(uuid.NewV4())

	e.subMutex.Lock()
	defer e.subMutex.Unlock()

	e.subscribers[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel
func (e *CoreEngine) Unsubscribe(id Subscriber) {
	e.subMutex.Lock()
	defer e.subMutex.Unlock()

	c, ok := e.subscribers[id]
	if !ok {
		return
	}
	delete(e.subscribers, id)
	close(c)
}

func (e *CoreEngine) publish(snap protocol.Snapshot) {
	e.subMutex.Lock()
	defer e.subMutex.Unlock()

	for _, c := range e.subscribers {
		select {
		case c <- snap:
		default:
			logging.Debug("engine", "subscriber full, dropping snapshot")
		}
	}
}

// pollerTask reads the radio state every period until cancelled
func (e *CoreEngine) pollerTask(every time.Duration) func(context.Context) {
	return func(ctx context.Context) {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				logging.Debug("engine", "Poller stopped")
				return
			case <-ticker.C:
			}

			if err := e.poll(); err != nil {
				if errors.Is(err, cat.ErrClosed) {
					return
				}
				failures++
				// Log the first failure of a run, then only every tenth
				if failures == 1 || failures%10 == 0 {
					logging.Warnf("engine", "state poll failed (%d in a row): %v", failures, err)
				}
				continue
			}
			if failures > 0 {
				logging.Infof("engine", "state poll recovered after %d failure(s)", failures)
				failures = 0
			}
		}
	}
}

// poll reads and records the state without an operation log entry
func (e *CoreEngine) poll() error {
	radio, err := e.controller()
	if err != nil {
		return err
	}
	state, err := radio.GetRadioInfo()
	if err != nil {
		return err
	}
	e.record(*state)
	return nil
}
