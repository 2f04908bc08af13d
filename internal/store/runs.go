package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/notacms/internal/syncer"
)

// RecordRun appends run to the sync log. Recording the same run ID twice
// is a no-op.
func (s *Store) RecordRun(ctx context.Context, run syncer.Run) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, source, started_at, finished_at, records, dangling, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Source,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Records, run.Dangling, run.Err)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// ReadRuns returns up to limit sync log entries, most recent first.
// A limit of zero or less returns all entries.
func (s *Store) ReadRuns(ctx context.Context, limit int) ([]syncer.Run, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, records, dangling, error
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []syncer.Run
	for rows.Next() {
		var run syncer.Run
		var started, finished string
		if err := rows.Scan(&run.ID, &run.Source, &started, &finished, &run.Records, &run.Dangling, &run.Err); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at of %s: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}
	return runs, nil
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
