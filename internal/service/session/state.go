package session

import "fmt"

// State 会话生命周期状态。
type State int

const (
	Idle State = iota
	Connecting
	Active
	Disconnecting
	Errored
)

var stateNames = [...]string{
	Idle:          "idle",
	Connecting:    "connecting",
	Active:        "active",
	Disconnecting: "disconnecting",
	Errored:       "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name for JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateListener observes every transition. It runs while the façade lock is
// held and must neither block nor call back into the façade.
type StateListener func(from, to State)

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
