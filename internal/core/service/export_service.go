package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/db"
	"github.com/dbferry/dbferry/internal/format"
	"github.com/dbferry/dbferry/internal/query"
	"github.com/dbferry/dbferry/internal/ratelimit"
	"github.com/dbferry/dbferry/pkg/config"
)

// webhookTimeout bounds the delivery POST for webhook destinations.
const webhookTimeout = 30 * time.Second

// ExportQuery is one of two input shapes: a table plus filter map, or
// a caller-supplied raw query. Raw queries never bypass tenant
// scoping; the engine's own predicate is always injected.
type ExportQuery struct {
	Table   string
	Filters map[string]any
	RawSQL  string
	RawArgs []any
}

// ExportOptions controls formatting and routing of the result.
type ExportOptions struct {
	Format      string
	Fields      []string
	SortKey     string
	SortDesc    bool
	Limit       int
	Offset      int
	Destination domain.ExportDestination
	WebhookURL  string
	Compress    bool
}

// ExportResult is the destination-dependent outcome of a batch export.
type ExportResult struct {
	Job           *domain.ExportJob
	Data          []byte
	FilePath      string
	WebhookStatus int
}

// ExportService is the synchronous and streaming tenant-scoped export
// engine. Exports are always scoped to one tenant and admitted through
// the rate limiter before any work happens.
type ExportService struct {
	cfg     *config.Config
	querier db.Querier
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
	client  *http.Client

	mu      sync.Mutex
	jobs    map[string]*domain.ExportJob
	cancels map[string]context.CancelFunc
}

func NewExportService(
	cfg *config.Config,
	querier db.Querier,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) *ExportService {
	return &ExportService{
		cfg:     cfg,
		querier: querier,
		limiter: limiter,
		logger:  logger.With().Str("component", "export").Logger(),
		client:  &http.Client{Timeout: webhookTimeout},
		jobs:    map[string]*domain.ExportJob{},
		cancels: map[string]context.CancelFunc{},
	}
}

// ExportData runs a batch export and routes the encoded result to its
// destination. Admission control and format validation happen before
// any query executes.
func (s *ExportService) ExportData(ctx context.Context, tenantID string, q ExportQuery, opts ExportOptions) (*ExportResult, error) {
	job, codec, err := s.admit(tenantID, q, &opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(job, cancel)
	defer s.untrack(job.ID)

	rows, err := s.readAll(ctx, tenantID, q, opts)
	if err != nil {
		s.finish(job, domain.ExportStatusFailed, err.Error())
		return nil, err
	}
	rows = project(rows, opts.Fields)
	job.RecordCount = len(rows)

	meta := format.Metadata{Table: q.Table, TenantID: tenantID, ExportedAt: time.Now()}
	encoded, err := codec.Encode(rows, meta)
	if err != nil {
		s.finish(job, domain.ExportStatusFailed, err.Error())
		return nil, err
	}

	result := &ExportResult{Job: job, Data: encoded}
	switch opts.Destination {
	case domain.ExportDestinationFile:
		path, err := s.writeExportFile(job.ID, codec.Extension(), encoded, opts.Compress)
		if err != nil {
			s.finish(job, domain.ExportStatusFailed, err.Error())
			return nil, err
		}
		job.FilePath = path
		result.FilePath = path
		result.Data = nil
	case domain.ExportDestinationWebhook:
		status, err := s.deliverWebhook(ctx, job, opts.WebhookURL, codec, encoded)
		if err != nil {
			s.finish(job, domain.ExportStatusFailed, err.Error())
			return nil, err
		}
		result.WebhookStatus = status
		result.Data = nil
	}

	s.finish(job, domain.ExportStatusCompleted, "")
	s.logger.Info().
		Str("job_id", job.ID).
		Str("tenant_id", tenantID).
		Int("records", job.RecordCount).
		Str("destination", string(opts.Destination)).
		Msg("export completed")
	return result, nil
}

// GetExportStatus returns a copy of the job record, which stays
// queryable after failure with the error attached.
func (s *ExportService) GetExportStatus(jobID string) (*domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, &NotFoundError{Kind: "export job", ID: jobID}
	}
	clone := *job
	return &clone, nil
}

// CancelExport aborts a running export before its next I/O step.
func (s *ExportService) CancelExport(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return &NotFoundError{Kind: "export job", ID: jobID}
	}
	if job.Status != domain.ExportStatusRunning {
		return NewConfigError("export %s is already %s", jobID, job.Status)
	}

	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
	}
	now := time.Now()
	job.Status = domain.ExportStatusCancelled
	job.CompletedAt = &now
	return nil
}

// admit performs the pre-work checks shared by batch and streaming
// exports: rate limiting first, then format validation. No partial
// work happens on rejection.
func (s *ExportService) admit(tenantID string, q ExportQuery, opts *ExportOptions) (*domain.ExportJob, format.Codec, error) {
	if tenantID == "" {
		return nil, nil, NewConfigError("export requires a tenant id")
	}

	if err := s.limiter.Allow(tenantID); err != nil {
		return nil, nil, &AdmissionError{TenantID: tenantID, Err: err}
	}

	if opts.Format == "" {
		opts.Format = s.cfg.DefaultFormat
	}
	if !s.cfg.FormatAllowed(opts.Format) {
		return nil, nil, NewConfigError("format %q is not in allowed_formats", opts.Format)
	}
	codec, err := format.Lookup(opts.Format)
	if err != nil {
		return nil, nil, NewConfigError("unknown format %q", opts.Format)
	}

	if opts.Destination == "" {
		opts.Destination = domain.ExportDestinationResponse
	}
	if opts.Destination == domain.ExportDestinationWebhook && opts.WebhookURL == "" {
		return nil, nil, NewConfigError("webhook destination requires a webhook url")
	}
	if opts.Compress && !s.cfg.CompressionAllowed("gzip") {
		return nil, nil, NewConfigError("compression is not in compression_formats")
	}

	if q.RawSQL == "" && !query.ValidIdentifier(q.Table) {
		return nil, nil, NewConfigError("invalid table name %q", q.Table)
	}

	job := &domain.ExportJob{
		ID:          "export-" + uuid.NewString(),
		TenantID:    tenantID,
		Table:       q.Table,
		Format:      opts.Format,
		Destination: opts.Destination,
		Status:      domain.ExportStatusRunning,
		CreatedAt:   time.Now(),
	}
	return job, codec, nil
}

func (s *ExportService) track(job *domain.ExportJob, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
}

func (s *ExportService) untrack(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, jobID)
}

func (s *ExportService) finish(job *domain.ExportJob, status domain.ExportStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Status == domain.ExportStatusCancelled {
		return
	}
	now := time.Now()
	job.Status = status
	job.Error = errMsg
	job.CompletedAt = &now
}

// reader builds the tenant-scoped chunked reader for either query
// shape.
func (s *ExportService) reader(tenantID string, q ExportQuery, opts ExportOptions, chunkSize int) *query.ChunkedReader {
	if q.RawSQL != "" {
		return query.NewRawReader(s.querier, q.RawSQL, q.RawArgs, tenantID, chunkSize)
	}

	filters, _ := query.FiltersFromMap(q.Filters)
	spec := query.Spec{
		Table:    q.Table,
		TenantID: &tenantID,
		Filters:  filters,
		SortKey:  opts.SortKey,
		SortDesc: opts.SortDesc,
	}
	return query.NewReader(s.querier, spec, chunkSize)
}

// readAll drains the reader up to the effective limit. The configured
// hard maximum applies regardless of the requested limit.
func (s *ExportService) readAll(ctx context.Context, tenantID string, q ExportQuery, opts ExportOptions) ([]db.Row, error) {
	if q.Filters != nil {
		if _, err := query.FiltersFromMap(q.Filters); err != nil {
			return nil, NewConfigError("%v", err)
		}
	}

	limit := opts.Limit
	if limit <= 0 || limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	reader := s.reader(tenantID, q, opts, s.cfg.ChunkSize)
	reader.SetOffset(opts.Offset)

	var rows []db.Row
	for {
		batch, err := reader.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		rows = append(rows, batch...)
		if len(rows) >= limit {
			rows = rows[:limit]
			break
		}
	}
	return rows, nil
}

func (s *ExportService) writeExportFile(jobID, extension string, data []byte, compress bool) (string, error) {
	if err := os.MkdirAll(s.cfg.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	name := jobID + "." + extension
	if compress {
		name += ".gz"
	}
	path := filepath.Join(s.cfg.ExportDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	defer f.Close()

	if compress {
		gz, err := gzip.NewWriterLevel(f, s.cfg.CompressionLevel)
		if err != nil {
			return "", fmt.Errorf("write export file: %w", err)
		}
		if _, err := gz.Write(data); err != nil {
			return "", fmt.Errorf("write export file: %w", err)
		}
		if err := gz.Close(); err != nil {
			return "", fmt.Errorf("write export file: %w", err)
		}
	} else if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

// deliverWebhook POSTs the encoded result with job metadata headers.
// A non-2xx response is a failure, not a silent drop.
func (s *ExportService) deliverWebhook(ctx context.Context, job *domain.ExportJob, url string, codec format.Codec, data []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("webhook delivery: %w", err)
	}
	req.Header.Set("Content-Type", contentType(codec.Name()))
	req.Header.Set("X-Export-Id", job.ID)
	req.Header.Set("X-Export-Tenant", job.TenantID)
	req.Header.Set("X-Export-Format", job.Format)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func contentType(formatName string) string {
	switch formatName {
	case "json":
		return "application/json"
	case "ndjson":
		return "application/x-ndjson"
	case "csv":
		return "text/csv"
	case "xml":
		return "application/xml"
	default:
		return "text/plain"
	}
}

// project keeps only the requested fields of each row. An empty field
// list means no projection.
func project(rows []db.Row, fields []string) []db.Row {
	if len(fields) == 0 {
		return rows
	}
	projected := make([]db.Row, len(rows))
	for i, row := range rows {
		out := db.Row{}
		for _, f := range fields {
			if v, ok := row[f]; ok {
				out[f] = v
			}
		}
		projected[i] = out
	}
	return projected
}
