// Package attempts stores the at-most-once latch that guards each authorization attempt.
package attempts

import (
	"errors"
	"fmt"
	"time"
)

// State of an attempt latch. An absent latch is Idle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

var (
	ErrIllegalTransition = errors.New("illegal latch transition")
	ErrUnknownAttempt    = errors.New("unknown attempt")
	ErrNotOwner          = errors.New("latch held by another attempt")
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "done":
		*s = StateDone
	default:
		return fmt.Errorf("unknown latch state %q", text)
	}
	return nil
}

// Transition returns to when the latch may move from -> to. The legal moves are
// Idle->Running, Running->Done and Running->Idle (reset after a failure).
// Done is terminal.
func Transition(from, to State) (State, error) {
	switch {
	case from == StateIdle && to == StateRunning,
		from == StateRunning && to == StateDone,
		from == StateRunning && to == StateIdle:
		return to, nil
	}
	return from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// Latch is the stored state of one attempt.
type Latch struct {
	State State `json:"state"`
	// Owner is issued by the Begin call that won the latch. Only that caller
	// may complete or reset it.
	Owner       string    `json:"owner,omitempty"`
	SubjectID   string    `json:"subject_id,omitempty"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Result is recorded when an attempt completes.
type Result struct {
	SubjectID   string
	RedirectURI string
}
