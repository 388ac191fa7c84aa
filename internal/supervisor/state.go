package supervisor

import (
	"fmt"

	"github.com/user/contentcrew/internal/types"
)

// State is a supervisor FSM state.
type State string

const (
	StateAwaitingRoute State = "awaiting_route"
	StateResearching   State = "researching"
	StateWriting       State = "writing"
	StateDone          State = "done"
)

var transitions = map[State][]State{
	StateAwaitingRoute: {StateResearching, StateWriting, StateDone},
	StateResearching:   {StateAwaitingRoute, StateDone},
	StateWriting:       {StateAwaitingRoute, StateDone},
}

// CanTransition reports whether the FSM allows from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateFor maps a decision to the state it enters.
func stateFor(d types.DecisionKind) State {
	switch d {
	case types.DecideResearch:
		return StateResearching
	case types.DecideWrite:
		return StateWriting
	}
	return StateDone
}

// machine tracks the current state and rejects illegal moves.
type machine struct {
	state  State
	active types.AgentName
}

func (m *machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	switch next {
	case StateResearching:
		m.active = types.AgentResearcher
	case StateWriting:
		m.active = types.AgentCopywriter
	default:
		m.active = types.AgentNone
	}
	return nil
}
