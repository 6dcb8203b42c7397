package domain

import "time"

type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCleanup   EventType = "cleanup"
)

// Event is a typed lifecycle notification emitted by the backup
// engine. Progress events carry a monotonically increasing fraction
// for the whole job.
type Event struct {
	Type     EventType `json:"type"`
	JobID    string    `json:"job_id"`
	Table    string    `json:"table,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	Fraction float64   `json:"fraction,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}
