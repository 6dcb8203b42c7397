package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dbferry/dbferry/internal/archive"
	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/db"
	"github.com/dbferry/dbferry/internal/format"
	"github.com/dbferry/dbferry/internal/query"
	"github.com/dbferry/dbferry/internal/storage"
	"github.com/dbferry/dbferry/pkg/config"
)

// restoreBatchSize bounds the multi-row inserts issued during restore.
const restoreBatchSize = 500

// sweepInterval is how often the retention sweep runs once started.
const sweepInterval = 12 * time.Hour

// CreateBackupOptions describes one backup request. A nil TenantID
// backs up all tenants.
type CreateBackupOptions struct {
	TenantID      *string
	Tables        []string
	Format        string
	Compress      bool
	Encrypt       bool
	Backend       string
	Since         *time.Time
	Until         *time.Time
	IncludeSchema bool
	CreatedBy     string
	Description   string
}

// RestoreOptions selects what to restore. An empty table list means
// every table in the manifest; unselected tables are never touched.
type RestoreOptions struct {
	Backend string
	Tables  []string
}

// BackupService owns the backup job queue. Jobs run under a semaphore
// so no more than MaxConcurrentBackups are in flight; a permit is
// acquired before a job leaves the queue, which keeps the slot check
// and the job start indivisible.
type BackupService struct {
	cfg      *config.Config
	querier  db.Querier
	backends *storage.Registry
	logger   zerolog.Logger
	broker   *eventBroker
	sem      *semaphore.Weighted

	mu      sync.Mutex
	jobs    map[string]*domain.BackupJob
	queue   []string
	cancels map[string]context.CancelFunc

	wake chan struct{}
}

func NewBackupService(
	cfg *config.Config,
	querier db.Querier,
	backends *storage.Registry,
	logger zerolog.Logger,
) *BackupService {
	return &BackupService{
		cfg:      cfg,
		querier:  querier,
		backends: backends,
		logger:   logger.With().Str("component", "backup").Logger(),
		broker:   newEventBroker(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentBackups)),
		jobs:     map[string]*domain.BackupJob{},
		cancels:  map[string]context.CancelFunc{},
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop and the periodic retention sweep.
// Both stop when the context is cancelled.
func (s *BackupService) Start(ctx context.Context) {
	go s.schedule(ctx)
	go s.retentionLoop(ctx)
}

// Subscribe returns a channel of job lifecycle events.
func (s *BackupService) Subscribe() (<-chan domain.Event, func()) {
	return s.broker.Subscribe()
}

// CreateBackup validates the request, enqueues a pending job, and
// returns once the job is queued, not once it completes.
func (s *BackupService) CreateBackup(opts CreateBackupOptions) (*domain.BackupJob, error) {
	if len(opts.Tables) == 0 {
		return nil, NewConfigError("backup requires at least one table")
	}
	for _, table := range opts.Tables {
		if !query.ValidIdentifier(table) {
			return nil, NewConfigError("invalid table name %q", table)
		}
	}

	if opts.Format == "" {
		opts.Format = s.cfg.DefaultFormat
	}
	if !s.cfg.FormatAllowed(opts.Format) {
		return nil, NewConfigError("format %q is not in allowed_formats", opts.Format)
	}
	if _, err := format.Lookup(opts.Format); err != nil {
		return nil, NewConfigError("unknown format %q", opts.Format)
	}

	if opts.Encrypt {
		return nil, NewConfigError("encryption is not supported yet")
	}

	if opts.Backend == "" {
		opts.Backend = storage.LocalName
	}
	if _, err := s.backends.Get(opts.Backend); err != nil {
		return nil, NewConfigError("backend %q is not registered", opts.Backend)
	}

	now := time.Now()
	job := &domain.BackupJob{
		ID:            domain.NewBackupID(now),
		TenantID:      opts.TenantID,
		Tables:        opts.Tables,
		Format:        opts.Format,
		Compress:      opts.Compress,
		Encrypt:       opts.Encrypt,
		Backend:       opts.Backend,
		Since:         opts.Since,
		Until:         opts.Until,
		IncludeSchema: opts.IncludeSchema,
		CreatedBy:     opts.CreatedBy,
		Description:   opts.Description,
		CreatedAt:     now,
		Status:        domain.BackupStatusPending,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.queue = append(s.queue, job.ID)
	s.mu.Unlock()

	s.signal()
	s.logger.Info().Str("job_id", job.ID).Strs("tables", job.Tables).Str("format", job.Format).Msg("backup queued")
	return s.snapshot(job.ID), nil
}

// GetBackupStatus returns a copy of the job record. Status stays
// queryable after failure, with the error attached.
func (s *BackupService) GetBackupStatus(jobID string) (*domain.BackupJob, error) {
	job := s.snapshot(jobID)
	if job == nil {
		return nil, &NotFoundError{Kind: "backup job", ID: jobID}
	}
	return job, nil
}

// ListBackups lists the stored backups on one backend.
func (s *BackupService) ListBackups(ctx context.Context, backendName string) ([]storage.Object, error) {
	backend, err := s.backends.Get(backendName)
	if err != nil {
		return nil, NewConfigError("backend %q is not registered", backendName)
	}
	return backend.List(ctx)
}

// DeleteBackup removes a stored backup from one backend.
func (s *BackupService) DeleteBackup(ctx context.Context, jobID, backendName string) error {
	backend, err := s.backends.Get(backendName)
	if err != nil {
		return NewConfigError("backend %q is not registered", backendName)
	}
	return backend.Delete(ctx, jobID)
}

// CancelBackup marks a running or pending job cancelled. Cancellation
// is cooperative: a running job observes it between chunk iterations.
func (s *BackupService) CancelBackup(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return &NotFoundError{Kind: "backup job", ID: jobID}
	}

	switch job.Status {
	case domain.BackupStatusPending:
		job.Status = domain.BackupStatusCancelled
		for i, id := range s.queue {
			if id == jobID {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	case domain.BackupStatusRunning:
		if cancel, ok := s.cancels[jobID]; ok {
			cancel()
		}
	default:
		return NewConfigError("job %s is already %s", jobID, job.Status)
	}
	return nil
}

// snapshot returns a copy of a job record, or nil if unknown.
func (s *BackupService) snapshot(jobID string) *domain.BackupJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	clone := *job
	return &clone
}

// signal nudges the scheduler without blocking.
func (s *BackupService) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// schedule drains the queue while permits are available. The permit is
// acquired before a job is dequeued, so the running-count bound holds
// at every instant, including re-entrant drains triggered by job
// completion.
func (s *BackupService) schedule(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}
			job := s.dequeue()
			if job == nil {
				s.sem.Release(1)
				break
			}

			jobCtx, cancel := context.WithCancel(ctx)
			s.mu.Lock()
			s.cancels[job.ID] = cancel
			s.mu.Unlock()

			go func(job *domain.BackupJob) {
				defer func() {
					cancel()
					s.mu.Lock()
					delete(s.cancels, job.ID)
					s.mu.Unlock()
					s.sem.Release(1)
					s.signal()
				}()
				s.runJob(jobCtx, job)
			}(job)
		}
	}
}

func (s *BackupService) dequeue() *domain.BackupJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		if job, ok := s.jobs[id]; ok && job.Status == domain.BackupStatusPending {
			job.Status = domain.BackupStatusRunning
			now := time.Now()
			job.StartedAt = &now
			return job
		}
	}
	return nil
}

// runJob walks the selected tables through the chunked reader, writes
// one file per chunk, writes the manifest, then archives and uploads
// per the job options.
func (s *BackupService) runJob(ctx context.Context, job *domain.BackupJob) {
	logger := s.logger.With().Str("job_id", job.ID).Logger()
	logger.Info().Msg("backup started")
	s.broker.emit(domain.Event{Type: domain.EventStarted, JobID: job.ID})

	if err := s.executeJob(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("backup cancelled")
			s.finishJob(job, domain.BackupStatusCancelled, "cancelled")
			s.broker.emit(domain.Event{Type: domain.EventFailed, JobID: job.ID, Error: "cancelled"})
			return
		}
		logger.Error().Err(err).Msg("backup failed")
		s.finishJob(job, domain.BackupStatusFailed, err.Error())
		s.broker.emit(domain.Event{Type: domain.EventFailed, JobID: job.ID, Error: err.Error()})
		return
	}

	logger.Info().Str("location", job.Location).Msg("backup completed")
	s.finishJob(job, domain.BackupStatusCompleted, "")
	s.broker.emit(domain.Event{Type: domain.EventCompleted, JobID: job.ID})
}

func (s *BackupService) finishJob(job *domain.BackupJob, status domain.BackupStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	job.Status = status
	job.Error = errMsg
	job.CompletedAt = &now
}

func (s *BackupService) executeJob(ctx context.Context, job *domain.BackupJob) error {
	codec, err := format.Lookup(job.Format)
	if err != nil {
		return err
	}
	backend, err := s.backends.Get(job.Backend)
	if err != nil {
		return err
	}

	workDir := filepath.Join(s.cfg.BackupDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	manifest := &domain.Manifest{
		ID:          job.ID,
		CreatedAt:   job.CreatedAt,
		CreatedBy:   job.CreatedBy,
		Description: job.Description,
		Tables:      job.Tables,
		Format:      job.Format,
		Stats: domain.ManifestStats{
			Tables: map[string]domain.TableStats{},
		},
	}

	for i, table := range job.Tables {
		if err := s.backupTable(ctx, job, codec, workDir, table, manifest); err != nil {
			return err
		}
		s.broker.emit(domain.Event{
			Type:     domain.EventProgress,
			JobID:    job.ID,
			Table:    table,
			Stage:    "table",
			Fraction: float64(i+1) / float64(len(job.Tables)),
		})
	}

	if job.IncludeSchema {
		if err := s.exportSchema(ctx, job.Tables, workDir); err != nil {
			return err
		}
		manifest.SchemaFile = domain.SchemaFilename
	}

	if err := writeManifest(workDir, manifest); err != nil {
		return err
	}

	// A remote target always ships a single bundle; locally the
	// uncompressed directory stays the artifact unless compression was
	// requested.
	artifact := workDir
	if job.Compress || job.Backend != storage.LocalName {
		bundle := workDir + archive.Extension
		if err := archive.Compress(workDir, bundle, s.cfg.CompressionLevel); err != nil {
			return fmt.Errorf("archive backup: %w", err)
		}
		if err := os.RemoveAll(workDir); err != nil {
			return fmt.Errorf("remove backup directory: %w", err)
		}
		artifact = bundle
	}
	job.Location = artifact

	if job.Backend != storage.LocalName {
		location, err := backend.Upload(ctx, artifact, job.ID+archive.Extension)
		if err != nil {
			return fmt.Errorf("upload backup: %w", err)
		}
		if err := os.Remove(artifact); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove local bundle after upload")
		}
		job.Location = location
	}

	return nil
}

func (s *BackupService) backupTable(
	ctx context.Context,
	job *domain.BackupJob,
	codec format.Codec,
	workDir, table string,
	manifest *domain.Manifest,
) error {
	spec := query.Spec{
		Table:    table,
		TenantID: job.TenantID,
		Since:    job.Since,
		Until:    job.Until,
	}
	reader := query.NewReader(s.querier, spec, s.cfg.ChunkSize)
	meta := format.Metadata{Table: table, ExportedAt: job.CreatedAt}
	if job.TenantID != nil {
		meta.TenantID = *job.TenantID
	}

	stats := domain.TableStats{}
	chunkIndex := 0
	for {
		// Cancellation is observed between chunk iterations; an
		// incomplete artifact stays manifest-less and restore refuses it.
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := reader.Next(ctx)
		if err != nil {
			return &ChunkError{JobID: job.ID, Table: table, Chunk: chunkIndex, Err: err}
		}
		if rows == nil {
			break
		}

		encoded, err := codec.Encode(rows, meta)
		if err != nil {
			return &ChunkError{JobID: job.ID, Table: table, Chunk: chunkIndex, Err: err}
		}

		filename := fmt.Sprintf("%s_chunk_%04d.%s", table, chunkIndex, codec.Extension())
		path := filepath.Join(workDir, filename)
		if err := os.WriteFile(path, encoded, 0o644); err != nil {
			return &ChunkError{JobID: job.ID, Table: table, Chunk: chunkIndex, Err: err}
		}

		chunk := domain.ChunkFile{
			Filename:    filename,
			TableName:   table,
			RecordCount: len(rows),
			FileSize:    int64(len(encoded)),
			ChunkIndex:  chunkIndex,
		}
		manifest.Files = append(manifest.Files, chunk)
		stats.RecordCount += chunk.RecordCount
		stats.FileSize += chunk.FileSize
		stats.Files = append(stats.Files, filename)

		s.broker.emit(domain.Event{
			Type:  domain.EventProgress,
			JobID: job.ID,
			Table: table,
			Stage: fmt.Sprintf("chunk %d", chunkIndex),
		})
		chunkIndex++
	}

	manifest.Stats.Tables[table] = stats
	manifest.Stats.TotalRecords += stats.RecordCount
	manifest.Stats.TotalSize += stats.FileSize
	return nil
}

func (s *BackupService) exportSchema(ctx context.Context, tables []string, workDir string) error {
	schema := map[string][]db.Column{}
	for _, table := range tables {
		columns, err := s.querier.TableColumns(ctx, table)
		if err != nil {
			return fmt.Errorf("export schema: %w", err)
		}
		schema[table] = columns
	}

	encoded, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("export schema: %w", err)
	}
	return os.WriteFile(filepath.Join(workDir, domain.SchemaFilename), encoded, 0o644)
}

func writeManifest(workDir string, manifest *domain.Manifest) error {
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, domain.ManifestFilename), encoded, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
