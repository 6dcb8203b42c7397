package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
	BackupStatusCancelled BackupStatus = "cancelled"
)

// backupIDTimeLayout is the timestamp prefix encoded into backup IDs.
// The retention sweep parses it back out to decide expiry.
const backupIDTimeLayout = "20060102-150405"

// BackupJob describes one queued or running backup. A nil TenantID
// means the backup spans all tenants.
type BackupJob struct {
	ID            string       `json:"id"`
	TenantID      *string      `json:"tenant_id,omitempty"`
	Tables        []string     `json:"tables"`
	Format        string       `json:"format"`
	Compress      bool         `json:"compress"`
	Encrypt       bool         `json:"encrypt"`
	Backend       string       `json:"backend"`
	Since         *time.Time   `json:"since,omitempty"`
	Until         *time.Time   `json:"until,omitempty"`
	IncludeSchema bool         `json:"include_schema"`
	CreatedBy     string       `json:"created_by"`
	Description   string       `json:"description"`
	CreatedAt     time.Time    `json:"created_at"`
	Status        BackupStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	// Location is the durable artifact once the job completes: a
	// directory or archive path for the local backend, a remote key
	// otherwise.
	Location string `json:"location,omitempty"`
}

// NewBackupID returns a fresh backup identifier. The creation time is
// encoded in the ID so retention can work from listings alone.
func NewBackupID(now time.Time) string {
	return fmt.Sprintf("backup-%s-%s", now.UTC().Format(backupIDTimeLayout), uuid.NewString()[:8])
}

// BackupIDTime extracts the creation timestamp encoded in a backup ID.
func BackupIDTime(id string) (time.Time, error) {
	if len(id) < len("backup-")+len(backupIDTimeLayout) {
		return time.Time{}, fmt.Errorf("backup id %q has no timestamp", id)
	}
	raw := id[len("backup-") : len("backup-")+len(backupIDTimeLayout)]
	t, err := time.Parse(backupIDTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("backup id %q has no timestamp: %w", id, err)
	}
	return t, nil
}
