package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbferry/dbferry/internal/db"
)

// ChunkedReader paginates a filtered query into bounded record
// batches. Each batch holds at most chunkSize rows; a batch shorter
// than chunkSize is the authoritative end-of-data signal. The reader
// is restartable: SetOffset positions it for resume after a failure.
//
// Query errors are propagated as-is. The reader never retries; a
// caller that retries needs to resume at the failed offset, not from
// zero.
type ChunkedReader struct {
	querier   db.Querier
	build     func(limit, offset int) (string, []any, error)
	chunkSize int
	offset    int
	done      bool
}

// NewReader returns a chunked reader over a built, tenant-scoped spec.
func NewReader(querier db.Querier, spec Spec, chunkSize int) *ChunkedReader {
	return &ChunkedReader{
		querier:   querier,
		build:     spec.Build,
		chunkSize: chunkSize,
	}
}

// NewRawReader returns a chunked reader over a caller-supplied query.
// The tenant predicate is always injected, and any trailing LIMIT is
// stripped so the reader owns pagination.
func NewRawReader(querier db.Querier, raw string, args []any, tenantID string, chunkSize int) *ChunkedReader {
	raw = stripLimit(raw)
	sql := InjectTenantPredicate(raw)
	args = append([]any{tenantID}, args...)

	return &ChunkedReader{
		querier: querier,
		build: func(limit, offset int) (string, []any, error) {
			bound := make([]any, 0, len(args)+2)
			bound = append(bound, args...)
			bound = append(bound, limit, offset)
			return sql + " LIMIT ? OFFSET ?", bound, nil
		},
		chunkSize: chunkSize,
	}
}

// Next returns the next batch, or nil once the sequence is exhausted.
func (r *ChunkedReader) Next(ctx context.Context) ([]db.Row, error) {
	if r.done {
		return nil, nil
	}

	sql, args, err := r.build(r.chunkSize, r.offset)
	if err != nil {
		return nil, err
	}

	rows, err := r.querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk read at offset %d: %w", r.offset, err)
	}

	// Advance by the actual row count, not the requested chunk size,
	// so a short final chunk ends the sequence here instead of
	// triggering one extra empty poll.
	r.offset += len(rows)
	if len(rows) < r.chunkSize {
		r.done = true
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}

// Offset returns the number of rows consumed so far.
func (r *ChunkedReader) Offset() int {
	return r.offset
}

// SetOffset positions the reader for a resumed read.
func (r *ChunkedReader) SetOffset(offset int) {
	r.offset = offset
	r.done = false
}

// stripLimit removes a trailing LIMIT clause from a raw query. Only a
// clause that runs to the end of the query is stripped.
func stripLimit(raw string) string {
	lower := strings.ToLower(raw)
	if i := strings.LastIndex(lower, " limit "); i >= 0 {
		rest := strings.TrimSpace(lower[i+len(" limit "):])
		if isLimitTail(rest) {
			return strings.TrimRight(raw[:i], " ")
		}
	}
	return raw
}

// isLimitTail reports whether s looks like "<n>" or "<n> offset <m>".
func isLimitTail(s string) bool {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return isDigits(fields[0])
	case 3:
		return isDigits(fields[0]) && fields[1] == "offset" && isDigits(fields[2])
	default:
		return false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
