package dto

import "time"

// CreateBackupRequest represents the backup creation request
type CreateBackupRequest struct {
	TenantID      *string    `json:"tenant_id"` // nil backs up all tenants
	Tables        []string   `json:"tables" binding:"required"`
	Format        string     `json:"format"`
	Compress      bool       `json:"compress"`
	Encrypt       bool       `json:"encrypt"`
	Backend       string     `json:"backend"`
	Since         *time.Time `json:"since"`
	Until         *time.Time `json:"until"`
	IncludeSchema bool       `json:"include_schema"`
	CreatedBy     string     `json:"created_by"`
	Description   string     `json:"description"`
}

// BackupJobResponse represents one backup job
type BackupJobResponse struct {
	ID          string     `json:"id"`
	TenantID    *string    `json:"tenant_id,omitempty"`
	Tables      []string   `json:"tables"`
	Format      string     `json:"format"`
	Backend     string     `json:"backend"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Location    string     `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StoredBackupResponse represents a backup artifact on a backend
type StoredBackupResponse struct {
	ID      string `json:"id"`
	Size    int64  `json:"size"`
	Backend string `json:"backend"`
}

// BackupListResponse represents the stored backups on one backend
type BackupListResponse struct {
	Items   []StoredBackupResponse `json:"items"`
	Backend string                 `json:"backend"`
}

// RestoreRequest represents the restore request
type RestoreRequest struct {
	Backend string   `json:"backend"`
	Tables  []string `json:"tables"`
}

// RestoreResponse reports rows restored per table
type RestoreResponse struct {
	BackupID string         `json:"backup_id"`
	Tables   map[string]int `json:"tables"`
}
