package streamer

import "fmt"

// State is a step of the reply delivery lifecycle.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateDegrading
	StateFallback
	StateFallbackRequested
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateStreaming:         "streaming",
	StateDegrading:         "degrading",
	StateFallback:          "fallback",
	StateFallbackRequested: "fallback_requested",
	StateCompleted:         "completed",
	StateFailed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions lists every legal edge. Anything absent is rejected.
var transitions = map[State][]State{
	StateIdle:              {StateStreaming, StateFallbackRequested, StateFailed},
	StateStreaming:         {StateCompleted, StateDegrading, StateFailed},
	StateDegrading:         {StateFallback, StateFailed},
	StateFallback:          {StateCompleted, StateFailed},
	StateFallbackRequested: {StateCompleted, StateFailed},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the current state of one delivery and its history.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}}
}

func (m *machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("streamer: illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// canEmit reports whether content may be sent to the caller. Only live
// delivery states emit.
func (m *machine) canEmit() bool {
	switch m.state {
	case StateStreaming, StateFallback:
		return true
	}
	return false
}
