package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbferry/dbferry/internal/archive"
	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/db"
	"github.com/dbferry/dbferry/internal/format"
	"github.com/dbferry/dbferry/internal/query"
	"github.com/dbferry/dbferry/internal/storage"
)

// RestoreBackup reverses the backup pipeline: download if remote,
// decompress if archived, then replay each selected table from its
// chunk files. The manifest is trusted as the complete description of
// what exists; its absence makes the backup unusable.
//
// Each selected table is truncated exactly once, before its first
// chunk. Unselected tables are never touched. Inserts use an
// idempotent conflict policy: rows with colliding identity are left
// untouched.
func (s *BackupService) RestoreBackup(ctx context.Context, backupID string, opts RestoreOptions) (map[string]int, error) {
	if opts.Backend == "" {
		opts.Backend = storage.LocalName
	}
	backend, err := s.backends.Get(opts.Backend)
	if err != nil {
		return nil, NewConfigError("backend %q is not registered", opts.Backend)
	}

	workDir, cleanup, err := s.stageBackup(ctx, backend, backupID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	manifest, err := readManifest(workDir)
	if err != nil {
		return nil, err
	}

	tables := opts.Tables
	if len(tables) == 0 {
		tables = manifest.Tables
	}

	codec, err := format.Lookup(manifest.Format)
	if err != nil {
		return nil, NewIntegrityError("manifest names unknown format %q", manifest.Format)
	}

	// Validate every selected table against the manifest before any
	// truncate happens, so a bad selection aborts with nothing touched.
	for _, table := range tables {
		if len(manifest.TableFiles(table)) == 0 {
			if _, ok := manifest.Stats.Tables[table]; !ok {
				return nil, NewIntegrityError("backup %s does not contain table %s", backupID, table)
			}
		}
	}

	counts := map[string]int{}
	for _, table := range tables {
		restored, err := s.restoreTable(ctx, codec, workDir, table, manifest)
		if err != nil {
			return nil, err
		}
		counts[table] = restored
	}

	s.logger.Info().Str("backup_id", backupID).Interface("counts", counts).Msg("restore completed")
	return counts, nil
}

// stageBackup makes the backup's directory available locally,
// downloading and unpacking as needed. The returned cleanup removes
// any temporary staging.
func (s *BackupService) stageBackup(ctx context.Context, backend storage.Backend, backupID string) (string, func(), error) {
	noop := func() {}

	if backend.Name() == storage.LocalName {
		dir := filepath.Join(s.cfg.BackupDir, backupID)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, noop, nil
		}

		bundle := dir + archive.Extension
		if _, err := os.Stat(bundle); err != nil {
			return "", noop, NewIntegrityError("backup %s not found on backend %s", backupID, backend.Name())
		}
		stage, err := os.MkdirTemp("", "dbferry-restore-")
		if err != nil {
			return "", noop, fmt.Errorf("stage restore: %w", err)
		}
		if err := archive.Extract(bundle, stage); err != nil {
			os.RemoveAll(stage)
			return "", noop, NewIntegrityError("backup %s archive is unreadable: %v", backupID, err)
		}
		return stage, func() { os.RemoveAll(stage) }, nil
	}

	stage, err := os.MkdirTemp("", "dbferry-restore-")
	if err != nil {
		return "", noop, fmt.Errorf("stage restore: %w", err)
	}
	cleanup := func() { os.RemoveAll(stage) }

	bundle := filepath.Join(stage, backupID+archive.Extension)
	if _, err := backend.Download(ctx, backupID+archive.Extension, bundle); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("download backup %s: %w", backupID, err)
	}
	if err := archive.Extract(bundle, stage); err != nil {
		cleanup()
		return "", noop, NewIntegrityError("backup %s archive is unreadable: %v", backupID, err)
	}
	return stage, cleanup, nil
}

func readManifest(workDir string) (*domain.Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(workDir, domain.ManifestFilename))
	if err != nil {
		return nil, NewIntegrityError("manifest missing: %v", err)
	}
	var manifest domain.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, NewIntegrityError("manifest malformed: %v", err)
	}
	return &manifest, nil
}

func (s *BackupService) restoreTable(
	ctx context.Context,
	codec format.Codec,
	workDir, table string,
	manifest *domain.Manifest,
) (int, error) {
	files := manifest.TableFiles(table)
	total := 0

	// A table backed up with zero rows produced no chunk files; restore
	// still empties it so the result matches the source.
	if len(files) == 0 {
		if err := s.querier.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return 0, fmt.Errorf("truncate %s: %w", table, err)
		}
		return 0, nil
	}

	for i, chunk := range files {
		raw, err := os.ReadFile(filepath.Join(workDir, chunk.Filename))
		if err != nil {
			return 0, NewIntegrityError("chunk file %s referenced by manifest is missing: %v", chunk.Filename, err)
		}

		rows, err := codec.Decode(raw)
		if err != nil {
			return 0, NewIntegrityError("chunk file %s is unreadable: %v", chunk.Filename, err)
		}

		// Truncate on the first chunk only; truncating per chunk would
		// destroy rows inserted from earlier chunks.
		if i == 0 {
			if err := s.querier.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
				return 0, fmt.Errorf("truncate %s: %w", table, err)
			}
		}

		inserted, err := s.insertRows(ctx, table, rows)
		if err != nil {
			return 0, fmt.Errorf("restore %s chunk %d: %w", table, chunk.ChunkIndex, err)
		}
		total += inserted
	}
	return total, nil
}

// insertRows replays decoded rows in bounded batches using an
// idempotent conflict policy.
func (s *BackupService) insertRows(ctx context.Context, table string, rows []db.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		if !query.ValidIdentifier(col) {
			return 0, fmt.Errorf("invalid column name %q", col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	total := 0
	for start := 0; start < len(rows); start += restoreBatchSize {
		end := start + restoreBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(columns))
		rowHoles := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
		for i, row := range batch {
			placeholders[i] = rowHoles
			for _, col := range columns {
				args = append(args, row[col])
			}
		}

		stmt := fmt.Sprintf(
			"INSERT OR IGNORE INTO %s (%s) VALUES %s",
			table,
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
		)
		if err := s.querier.Exec(ctx, stmt, args...); err != nil {
			return 0, err
		}
		total += len(batch)
	}
	return total, nil
}
