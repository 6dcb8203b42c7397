package service

import "fmt"

// ConfigError marks a request that named an unknown backend or format.
// It is rejected before any I/O and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// AdmissionError marks an export rejected by rate limiting before any
// work was performed. The caller may retry after the window elapses.
type AdmissionError struct {
	TenantID string
	Err      error
}

func (e *AdmissionError) Error() string { return e.Err.Error() }
func (e *AdmissionError) Unwrap() error { return e.Err }

// IntegrityError marks a restore that found the backup unusable: a
// missing or malformed manifest, or a chunk file the manifest
// references that does not exist. Restore aborts entirely rather than
// partially restoring.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string { return e.Reason }

func NewIntegrityError(format string, args ...any) *IntegrityError {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}

// ChunkError carries enough context to resume a failed job manually:
// the job, the table, and the chunk index that failed.
type ChunkError struct {
	JobID string
	Table string
	Chunk int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("job %s: table %s chunk %d: %v", e.JobID, e.Table, e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// NotFoundError is returned for status queries on unknown job IDs.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
