package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/syncer"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// slugField is copied into its own column for page lookups.
const slugField = "slug"

// slugKey is the form a slug is indexed and looked up by. Only the lookup
// column is NFC normalized; the stored body keeps the original string.
func slugKey(s string) string {
	return norm.NFC.String(s)
}

// Store flattens set and replaces the stored collection of each type in
// it, one transaction per type in sorted type order. Types absent from set
// are left untouched.
func (s *Store) Store(ctx context.Context, set record.Set) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	flat := graph.Flatten(set)
	now := time.Now().UTC().Format(timeLayout)
	for _, typ := range flat.Types() {
		if err := replaceCollection(ctx, db, typ, flat[typ], now); err != nil {
			return syncer.NewPersistenceError(typ, err)
		}
	}
	return nil
}

func replaceCollection(ctx context.Context, db *sql.DB, typ string, recs []*record.Record, now string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE type = ?`, typ); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (type, content_id, position, slug, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, content_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, rec := range recs {
		body, err := record.MarshalCanonical(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Key(), err)
		}
		var slug sql.NullString
		if v, ok := rec.Fields[slugField].(string); ok {
			slug = sql.NullString{String: slugKey(v), Valid: true}
		}
		res, err := stmt.ExecContext(ctx, typ, rec.ContentID, i, slug, string(body))
		if err != nil {
			return fmt.Errorf("insert %s: %w", rec.Key(), err)
		}
		// A duplicate contentId inserts nothing; the first record wins.
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert %s: %w", rec.Key(), err)
		}
		inserted += int(n)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collections (type, record_count, replaced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET
			record_count = excluded.record_count,
			replaced_at = excluded.replaced_at
	`, typ, inserted, now)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetAll returns every stored collection, records in their stored order.
// Collections replaced with no records are present and empty.
func (s *Store) GetAll(ctx context.Context) (record.Set, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	set := record.Set{}
	types, err := db.QueryContext(ctx, `SELECT type FROM collections ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	for types.Next() {
		var typ string
		if err := types.Scan(&typ); err != nil {
			types.Close()
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		set[typ] = []*record.Record{}
	}
	if err := types.Err(); err != nil {
		types.Close()
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	types.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT type, content_id, body
		FROM records
		ORDER BY type, position
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		set.Add(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return set, nil
}

// Get returns the stored record with the given key, relations as stubs.
func (s *Store) Get(ctx context.Context, k record.Key) (*record.Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `
		SELECT type, content_id, body
		FROM records
		WHERE type = ? AND content_id = ?
	`, k.Type, k.ContentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	return rec, err
}

// FindBySlug returns the first stored record of typ whose slug field
// equals slug. Slugs match regardless of Unicode normalization form.
func (s *Store) FindBySlug(ctx context.Context, typ, slug string) (*record.Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `
		SELECT type, content_id, body
		FROM records
		WHERE type = ? AND slug = ?
		ORDER BY position
		LIMIT 1
	`, typ, slugKey(slug))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s with slug %q: %w", typ, slug, ErrNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*record.Record, error) {
	var typ, id, body string
	if err := sc.Scan(&typ, &id, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	fields, err := record.DecodeDocument([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("record %s/%s: %w", typ, id, err)
	}
	return record.New(typ, id, fields), nil
}
