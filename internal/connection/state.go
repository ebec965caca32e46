package connection

import (
	"fmt"

	"onionctl/internal/reporting"
)

// Phase is the lifecycle phase of the tunnel.
type Phase string

const (
	PhaseStopped   Phase = "Stopped"
	PhaseStarting  Phase = "Starting"
	PhaseConnected Phase = "Connected"
	PhaseStopping  Phase = "Stopping"
	PhaseError     Phase = "Error"
)

// State is a snapshot of the connection. Reason is set only in PhaseError; Progress is the
// bootstrap percentage while starting.
type State struct {
	Phase    Phase  `json:"phase"`
	Reason   string `json:"reason,omitempty"`
	Progress int    `json:"progress,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case PhaseError:
		return fmt.Sprintf("Error(%s)", s.Reason)
	case PhaseStarting:
		return fmt.Sprintf("Starting(%d%%)", s.Progress)
	default:
		return string(s.Phase)
	}
}

// Is reports whether the state is in phase p.
func (s State) Is(p Phase) bool {
	return s.Phase == p
}

// StateChangedEvent is published on every transition and progress update.
type StateChangedEvent struct {
	reporting.BaseEvent
	OldState State `json:"oldState"`
	NewState State `json:"newState"`
}

// String returns a human-readable description
func (e StateChangedEvent) String() string {
	return fmt.Sprintf("connection %s -> %s", e.OldState, e.NewState)
}

func eventTypeFor(s State) reporting.EventType {
	switch s.Phase {
	case PhaseStarting:
		if s.Progress > 0 {
			return reporting.EventTypeConnectionProgress
		}
		return reporting.EventTypeConnectionStarting
	case PhaseConnected:
		return reporting.EventTypeConnectionConnected
	case PhaseStopping:
		return reporting.EventTypeConnectionStopping
	case PhaseError:
		return reporting.EventTypeConnectionError
	default:
		return reporting.EventTypeConnectionStopped
	}
}

func newStateChangedEvent(old, new State) *StateChangedEvent {
	severity := reporting.SeverityInfo
	switch {
	case new.Phase == PhaseError:
		severity = reporting.SeverityError
	case eventTypeFor(new) == reporting.EventTypeConnectionProgress:
		severity = reporting.SeverityDebug
	}
	return &StateChangedEvent{
		BaseEvent: reporting.NewBaseEvent(eventTypeFor(new), "Connection", severity),
		OldState:  old,
		NewState:  new,
	}
}
