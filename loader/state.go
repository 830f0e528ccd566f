package loader

import "fmt"

// State is a point in a handle's lifecycle. Transitions only move forward.
type State int32

const (
	StateUnloaded State = iota
	StateMapped
	StateVersionChecked
	StateRegistered
	StateInitialized
	StateActive
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateMapped:
		return "mapped"
	case StateVersionChecked:
		return "version-checked"
	case StateRegistered:
		return "registered"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateUnloading:
		return "unloading"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
