package transaction

// State is a step in the life of one exchange.
type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaitingResponse
	StateMatched
	StateTimedOut
	StateRetry
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateSent:             "Sent",
	StateAwaitingResponse: "AwaitingResponse",
	StateMatched:          "Matched",
	StateTimedOut:         "TimedOut",
	StateRetry:            "Retry",
	StateFailed:           "Failed",
	StateClosed:           "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Transition reports one state change of exchange ID.
type Transition struct {
	ID   string
	Verb string
	From State
	To   State
}

type tracker struct {
	id    string
	verb  string
	state State
	hook  func(Transition)
}

func (t *tracker) move(to State) {
	from := t.state
	t.state = to
	if t.hook != nil {
		t.hook(Transition{ID: t.id, Verb: t.verb, From: from, To: to})
	}
}
