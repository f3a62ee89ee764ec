package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID  string `json:"run_id"`
	Period string `json:"period_key"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RowRejectedData contains data for RowRejected events
type RowRejectedData struct {
	RunID  string `json:"run_id"`
	Line   int    `json:"line"`
	Entity string `json:"entity,omitempty"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// EventType returns the event type for RowRejectedData
func (d *RowRejectedData) EventType() EventType {
	return RowRejected
}

// SnapshotBuiltData contains data for SnapshotBuilt events
type SnapshotBuiltData struct {
	RunID    string `json:"run_id"`
	Period   string `json:"period_key"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// EventType returns the event type for SnapshotBuiltData
func (d *SnapshotBuiltData) EventType() EventType {
	return SnapshotBuilt
}

// DuplicatePeriodData contains data for DuplicatePeriod events
type DuplicatePeriodData struct {
	RunID  string `json:"run_id"`
	Period string `json:"period_key"`
}

// EventType returns the event type for DuplicatePeriodData
func (d *DuplicatePeriodData) EventType() EventType {
	return DuplicatePeriod
}

// PeriodCommittedData contains data for PeriodCommitted events
type PeriodCommittedData struct {
	RunID     string  `json:"run_id"`
	Period    string  `json:"period_key"`
	Baseline  string  `json:"baseline_period_key,omitempty"`
	Records   int     `json:"records"`
	Movers    int     `json:"movers"`
	NetChange float64 `json:"net_change"`
}

// EventType returns the event type for PeriodCommittedData
func (d *PeriodCommittedData) EventType() EventType {
	return PeriodCommitted
}

// DigestSkippedData contains data for DigestSkipped events
type DigestSkippedData struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

// EventType returns the event type for DigestSkippedData
func (d *DigestSkippedData) EventType() EventType {
	return DigestSkipped
}

// NotificationData contains data for NotificationSent and NotificationFailed events
type NotificationData struct {
	RunID   string `json:"run_id"`
	Channel string `json:"channel"`
	Error   string `json:"error,omitempty"`
}

// EventType returns NotificationFailed when an error is set
func (d *NotificationData) EventType() EventType {
	if d.Error != "" {
		return NotificationFailed
	}
	return NotificationSent
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// RunFinishedData contains data for RunFinished events
type RunFinishedData struct {
	RunID    string  `json:"run_id"`
	Period   string  `json:"period_key"`
	Status   string  `json:"status"`
	Accepted int     `json:"accepted"`
	Rejected int     `json:"rejected"`
	Records  int     `json:"records"`
	Quantity float64 `json:"quantity"`
	Seconds  float64 `json:"duration_seconds"`
}

// EventType returns the event type for RunFinishedData
func (d *RunFinishedData) EventType() EventType {
	return RunFinished
}

// BackupData contains data for BackupCompleted and BackupFailed events
type BackupData struct {
	Key       string `json:"key,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EventType returns BackupFailed when an error is set
func (d *BackupData) EventType() EventType {
	if d.Error != "" {
		return BackupFailed
	}
	return BackupCompleted
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case RunStarted:
		eventData = &RunStartedData{}
	case RowRejected:
		eventData = &RowRejectedData{}
	case SnapshotBuilt:
		eventData = &SnapshotBuiltData{}
	case DuplicatePeriod:
		eventData = &DuplicatePeriodData{}
	case PeriodCommitted:
		eventData = &PeriodCommittedData{}
	case DigestSkipped:
		eventData = &DigestSkippedData{}
	case NotificationSent, NotificationFailed:
		eventData = &NotificationData{}
	case RunFailed:
		eventData = &RunFailedData{}
	case RunFinished:
		eventData = &RunFinishedData{}
	case BackupCompleted, BackupFailed:
		eventData = &BackupData{}
	default:
		eventData = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
