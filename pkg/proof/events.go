package proof

import "time"

// EventType tags the lifecycle stage a composition event reports.
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// CompositionEvent is emitted by the composer while a composition runs.
type CompositionEvent struct {
	Type          EventType `json:"type"`
	CompositionID string    `json:"composition_id"`
	Timestamp     int64     `json:"timestamp"`
	// Stage names the phase a progress event refers to.
	Stage string `json:"stage,omitempty"`
	// Progress is the completion fraction in [0,1] for progress events.
	Progress float64 `json:"progress,omitempty"`
	// ProofCount is set on completed events.
	ProofCount int `json:"proof_count,omitempty"`
	// Error carries the failure message on failed events.
	Error string `json:"error,omitempty"`
}

// NewEvent stamps a composition event with the current time.
func NewEvent(eventType EventType, compositionID string) CompositionEvent {
	return CompositionEvent{
		Type:          eventType,
		CompositionID: compositionID,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// EventListener receives composition events synchronously with the emitting
// operation. Errors and panics raised by a listener are discarded by the
// composer and never abort the in-flight operation.
type EventListener func(event CompositionEvent)

// OperationTelemetry is one telemetry record for a composer operation.
type OperationTelemetry struct {
	Operation string        `json:"operation"`
	System    System        `json:"system,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Timestamp int64         `json:"timestamp"`
	ErrorCode string        `json:"error_code,omitempty"`
}

// TelemetryCollector records operation telemetry emitted by the composer.
type TelemetryCollector interface {
	Record(op OperationTelemetry)
}
