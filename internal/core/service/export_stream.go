package service

import (
	"context"
	"io"
	"time"

	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/format"
	"github.com/dbferry/dbferry/internal/query"
)

// ExportStream yields a streaming export as a sequence of encoded
// fragments. Fragments concatenate into one valid document of the
// chosen format; the encoder owns the open and close framing. Memory
// stays bounded by the stream chunk size regardless of result size.
type ExportStream struct {
	svc     *ExportService
	job     *domain.ExportJob
	reader  *query.ChunkedReader
	encoder *format.StreamEncoder
	fields  []string
	limit   int
	sent    int
	done    bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// StreamExport starts a streaming export. Admission and format checks
// happen here; formats without streaming support are rejected before
// any query runs. The caller drains fragments with Next and must call
// Close when finished or aborting.
func (s *ExportService) StreamExport(ctx context.Context, tenantID string, q ExportQuery, opts ExportOptions) (*ExportStream, error) {
	job, codec, err := s.admit(tenantID, q, &opts)
	if err != nil {
		return nil, err
	}

	meta := format.Metadata{Table: q.Table, TenantID: tenantID, ExportedAt: time.Now()}
	encoder, err := format.NewStreamEncoder(codec, meta)
	if err != nil {
		return nil, NewConfigError("format %q does not support streaming", opts.Format)
	}

	limit := opts.Limit
	if limit <= 0 || limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	reader := s.reader(tenantID, q, opts, s.cfg.StreamChunkSize)
	reader.SetOffset(opts.Offset)

	streamCtx, cancel := context.WithCancel(ctx)
	s.track(job, cancel)

	return &ExportStream{
		svc:     s,
		job:     job,
		reader:  reader,
		encoder: encoder,
		fields:  opts.Fields,
		limit:   limit,
		ctx:     streamCtx,
		cancel:  cancel,
	}, nil
}

// Job returns the stream's job record.
func (st *ExportStream) Job() *domain.ExportJob {
	return st.job
}

// Next returns the next encoded fragment, or nil once the stream is
// exhausted. The final data fragment is followed by one closing
// fragment before nil. Cancellation via CancelExport surfaces here as
// a context error.
func (st *ExportStream) Next(ctx context.Context) ([]byte, error) {
	if st.done {
		return nil, nil
	}
	if err := st.ctx.Err(); err != nil {
		st.done = true
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		st.fail(err)
		return nil, err
	}

	if st.sent >= st.limit {
		return st.finishStream()
	}

	rows, err := st.reader.Next(st.ctx)
	if err != nil {
		st.fail(err)
		return nil, err
	}
	if rows == nil {
		return st.finishStream()
	}

	if remaining := st.limit - st.sent; len(rows) > remaining {
		rows = rows[:remaining]
	}
	rows = project(rows, st.fields)
	st.sent += len(rows)

	out, err := st.encoder.Encode(rows)
	if err != nil {
		st.fail(err)
		return nil, err
	}
	return out, nil
}

// WriteTo drains the stream into w. Used for the file destination,
// where fragments are piped straight to disk.
func (st *ExportStream) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	for {
		fragment, err := st.Next(ctx)
		if err != nil {
			return written, err
		}
		if fragment == nil {
			return written, nil
		}
		n, err := w.Write(fragment)
		written += int64(n)
		if err != nil {
			st.fail(err)
			return written, err
		}
	}
}

// Close releases the stream. Closing before exhaustion marks the job
// cancelled; a drained stream is already completed.
func (st *ExportStream) Close() error {
	st.cancel()
	st.svc.untrack(st.job.ID)
	if !st.done {
		st.done = true
		st.svc.finish(st.job, domain.ExportStatusCancelled, "")
	}
	return nil
}

func (st *ExportStream) finishStream() ([]byte, error) {
	out, err := st.encoder.Close()
	if err != nil {
		st.fail(err)
		return nil, err
	}
	st.done = true
	st.job.RecordCount = st.sent
	st.svc.finish(st.job, domain.ExportStatusCompleted, "")
	st.svc.logger.Info().
		Str("job_id", st.job.ID).
		Str("tenant_id", st.job.TenantID).
		Int("records", st.sent).
		Msg("streaming export completed")
	return out, nil
}

func (st *ExportStream) fail(err error) {
	if st.done {
		return
	}
	st.done = true
	st.svc.finish(st.job, domain.ExportStatusFailed, err.Error())
}
