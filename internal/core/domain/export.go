package domain

import "time"

type ExportStatus string

const (
	ExportStatusPending   ExportStatus = "pending"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
	ExportStatusCancelled ExportStatus = "cancelled"
)

type ExportDestination string

const (
	ExportDestinationResponse ExportDestination = "response"
	ExportDestinationFile     ExportDestination = "file"
	ExportDestinationWebhook  ExportDestination = "webhook"
)

// ExportJob tracks one export for status queries. Exports are always
// tenant-scoped; TenantID is never empty. Jobs live in an in-memory
// status map for the duration of the run, they are not persisted.
type ExportJob struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Table       string            `json:"table"`
	Format      string            `json:"format"`
	Destination ExportDestination `json:"destination"`
	Status      ExportStatus      `json:"status"`
	Error       string            `json:"error,omitempty"`
	RecordCount int               `json:"record_count"`
	FilePath    string            `json:"file_path,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
