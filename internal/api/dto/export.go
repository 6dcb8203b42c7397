package dto

import "time"

// CreateExportRequest represents the export request. Either Table or
// RawSQL must be set; both query shapes are tenant-scoped server-side.
type CreateExportRequest struct {
	TenantID    string         `json:"tenant_id" binding:"required"`
	Table       string         `json:"table"`
	Filters     map[string]any `json:"filters"`
	RawSQL      string         `json:"raw_sql"`
	RawArgs     []any          `json:"raw_args"`
	Format      string         `json:"format"`
	Fields      []string       `json:"fields"`
	SortKey     string         `json:"sort_key"`
	SortDesc    bool           `json:"sort_desc"`
	Limit       int            `json:"limit"`
	Offset      int            `json:"offset"`
	Destination string         `json:"destination"`
	WebhookURL  string         `json:"webhook_url"`
	Compress    bool           `json:"compress"`
}

// ExportJobResponse represents one export job
type ExportJobResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Table       string     `json:"table,omitempty"`
	Format      string     `json:"format"`
	Destination string     `json:"destination"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RecordCount int        `json:"record_count"`
	FilePath    string     `json:"file_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
