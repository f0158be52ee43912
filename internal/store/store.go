// Package store is the SQLite backend for the translation cache.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valpere/tlumach/internal/cache"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the cache already serializes saves.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		provider TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_created ON cache_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_cache_pair ON cache_entries(source_lang, target_lang);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load returns every stored entry, oldest first.
func (s *Store) Load(ctx context.Context) ([]cache.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, source_text, source_lang, target_lang, provider, translated_text, created_at
		 FROM cache_entries ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []cache.Record
	for rows.Next() {
		var r cache.Record
		var createdAt int64
		if err := rows.Scan(&r.Key, &r.Entry.Text, &r.Entry.SourceLang, &r.Entry.TargetLang,
			&r.Entry.Provider, &r.Entry.Translation, &createdAt); err != nil {
			return nil, err
		}
		r.Entry.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Save replaces the stored snapshot with records in one transaction.
func (s *Store) Save(ctx context.Context, records []cache.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, source_text, source_lang, target_lang, provider, translated_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		e := r.Entry
		if _, err := stmt.ExecContext(ctx, r.Key, e.Text, e.SourceLang, e.TargetLang, e.Provider, e.Translation, e.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("save %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

// Clear removes all cache entries.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

// PairCount is the number of stored entries for one language pair.
type PairCount struct {
	SourceLang string
	TargetLang string
	Entries    int
}

// Stats summarises stored entries per language pair.
func (s *Store) Stats(ctx context.Context) ([]PairCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_lang, target_lang, COUNT(*)
		FROM cache_entries
		GROUP BY source_lang, target_lang
		ORDER BY COUNT(*) DESC, source_lang, target_lang`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PairCount
	for rows.Next() {
		var pc PairCount
		if err := rows.Scan(&pc.SourceLang, &pc.TargetLang, &pc.Entries); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
