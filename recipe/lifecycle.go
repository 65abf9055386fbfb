package recipe

import "fmt"

//go:generate go tool stringer -type=State -trimprefix=State -output=state_string.go

// State is a step of the build lifecycle.
type State int

const (
	StateUnconfigured State = iota
	StateConfigurePOSIX
	StateConfigureMSVC
	StateBuilt
	StatePackaged
	StateFailed
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StatePackaged || s == StateFailed
}

var transitions = map[State][]State{
	StateUnconfigured:   {StateConfigurePOSIX, StateConfigureMSVC},
	StateConfigurePOSIX: {StateBuilt, StateFailed},
	StateConfigureMSVC:  {StateBuilt, StateFailed},
	StateBuilt:          {StatePackaged, StateFailed},
}

// Lifecycle tracks one build through
// Unconfigured -> Configure{POSIX,MSVC} -> Built -> Packaged, with Failed
// reachable from every non-terminal state after configuration started.
// It is not safe for concurrent use; one build owns one Lifecycle.
type Lifecycle struct {
	state State
	err   error
}

// NewLifecycle returns a lifecycle in StateUnconfigured.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateUnconfigured}
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// Err returns the error that moved the lifecycle to StateFailed.
func (l *Lifecycle) Err() error { return l.err }

func (l *Lifecycle) move(to State) error {
	for _, s := range transitions[l.state] {
		if s == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
}

// Configure enters the configure state of family f.
func (l *Lifecycle) Configure(f Family) error {
	switch f {
	case FamilyPOSIX:
		return l.move(StateConfigurePOSIX)
	case FamilyMSVC:
		return l.move(StateConfigureMSVC)
	}
	return fmt.Errorf("%w: unknown family %s", ErrInvalidTransition, f)
}

// Built records a successful build.
func (l *Lifecycle) Built() error { return l.move(StateBuilt) }

// Packaged records a successful packaging step.
func (l *Lifecycle) Packaged() error { return l.move(StatePackaged) }

// Fail moves the lifecycle to StateFailed and records err.
func (l *Lifecycle) Fail(err error) error {
	if mErr := l.move(StateFailed); mErr != nil {
		return mErr
	}
	l.err = err
	return nil
}
