package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dupguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/dupguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			fingerprint TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			source TEXT NOT NULL,
			published_at TEXT NOT NULL,
			excerpt TEXT,
			first_processed_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL,
			times_processed INTEGER NOT NULL,
			sources_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_last_seen ON records(last_seen_at)`,
		`CREATE INDEX IF NOT EXISTS idx_records_published ON records(published_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) LoadAll(ctx context.Context) (map[string]model.ProcessedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, title, url, source, published_at, excerpt,
			first_processed_at, last_seen_at, times_processed, sources_json
		FROM records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]model.ProcessedRecord)
	for rows.Next() {
		var rec model.ProcessedRecord
		var published, first, last, sources string
		var excerpt sql.NullString
		if err := rows.Scan(&rec.Fingerprint, &rec.Title, &rec.URL, &rec.Source,
			&published, &excerpt, &first, &last, &rec.TimesProcessed, &sources); err != nil {
			return nil, err
		}
		rec.PublishedAt = decodeTime(published)
		rec.Excerpt = excerpt.String
		rec.FirstProcessedAt = decodeTime(first)
		rec.LastSeenAt = decodeTime(last)
		rec.Sources = decodeSources(sources)
		out[rec.Fingerprint] = rec
	}
	return out, rows.Err()
}

func (s *postgresStore) SaveAll(ctx context.Context, records map[string]model.ProcessedRecord) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (fingerprint, title, url, source, published_at, excerpt,
			first_processed_at, last_seen_at, times_processed, sources_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Fingerprint,
			rec.Title,
			rec.URL,
			rec.Source,
			encodeTime(rec.PublishedAt),
			rec.Excerpt,
			encodeTime(rec.FirstProcessedAt),
			encodeTime(rec.LastSeenAt),
			rec.TimesProcessed,
			encodeJSON(rec.Sources),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
