package reporting

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Connection lifecycle events
	EventTypeConnectionStarting  EventType = "connection.starting"
	EventTypeConnectionProgress  EventType = "connection.progress"
	EventTypeConnectionConnected EventType = "connection.connected"
	EventTypeConnectionStopping  EventType = "connection.stopping"
	EventTypeConnectionStopped   EventType = "connection.stopped"
	EventTypeConnectionError     EventType = "connection.error"

	// Circuit refresh events
	EventTypeCircuitsListing EventType = "circuits.listing"
	EventTypeCircuitsClosing EventType = "circuits.closing"
	EventTypeCircuitsDone    EventType = "circuits.done"
	EventTypeCircuitsFailed  EventType = "circuits.failed"

	// Configuration and log events
	EventTypeBridgesSaved EventType = "bridges.saved"
	EventTypeLogSwitched  EventType = "log.switched"

	// System events
	EventTypeSystemStartup  EventType = "system.startup"
	EventTypeSystemShutdown EventType = "system.shutdown"
)

// EventSeverity indicates the importance/severity of an event
type EventSeverity string

const (
	SeverityDebug EventSeverity = "debug"
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
)

// Event is the base interface for all events in the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Source returns the component that generated this event
	Source() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Severity returns the event severity
	Severity() EventSeverity

	// CorrelationID ties together the events of one operation (e.g. one circuit refresh)
	CorrelationID() string

	// String returns a human-readable description of the event
	String() string
}

// BaseEvent provides common event functionality. Components embed it in their own
// event types so the bus never needs to know about component state types.
type BaseEvent struct {
	EventType     EventType     `json:"type"`
	SourceLabel   string        `json:"source"`
	EventTime     time.Time     `json:"timestamp"`
	EventSeverity EventSeverity `json:"severity"`
	CorrelationId string        `json:"correlation_id,omitempty"`
}

// NewBaseEvent stamps a new event with the current time.
func NewBaseEvent(eventType EventType, source string, severity EventSeverity) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SourceLabel:   source,
		EventTime:     time.Now(),
		EventSeverity: severity,
	}
}

// Type implements Event interface
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Source implements Event interface
func (e BaseEvent) Source() string {
	return e.SourceLabel
}

// Timestamp implements Event interface
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Severity implements Event interface
func (e BaseEvent) Severity() EventSeverity {
	return e.EventSeverity
}

// CorrelationID implements Event interface
func (e BaseEvent) CorrelationID() string {
	return e.CorrelationId
}

// String implements Event interface
func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// WithCorrelation sets the correlation ID
func (e *BaseEvent) WithCorrelation(correlationID string) *BaseEvent {
	e.CorrelationId = correlationID
	return e
}

// SystemEvent represents system-level events
type SystemEvent struct {
	BaseEvent
	Details string `json:"details,omitempty"`
}

// String returns a human-readable description
func (e SystemEvent) String() string {
	if e.Details != "" {
		return e.SourceLabel + " " + string(e.EventType) + ": " + e.Details
	}
	return e.SourceLabel + " " + string(e.EventType)
}

// NewSystemEvent creates a new system event
func NewSystemEvent(eventType EventType, component, details string) *SystemEvent {
	return &SystemEvent{
		BaseEvent: NewBaseEvent(eventType, component, SeverityInfo),
		Details:   details,
	}
}

// GenerateCorrelationID returns a fresh random identifier.
func GenerateCorrelationID() string {
	return uuid.NewString()
}
