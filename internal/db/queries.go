package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/podscribe/internal/codec"
	"github.com/hpungsan/podscribe/internal/errors"
)

// Row is one stored transcript: the codec blob plus bookkeeping columns.
type Row struct {
	Key       string
	SourceURL string
	Blob      codec.Blob
	Revision  string
	CreatedAt int64
	UpdatedAt int64
}

// Summary is the listing view of a row. It never touches the blob contents,
// so malformed rows still list.
type Summary struct {
	Key           string `json:"key"`
	SourceURL     string `json:"source_url"`
	TextChars     int    `json:"text_chars"`
	StoredBytes   int64  `json:"stored_bytes"`
	HasSummary    bool   `json:"has_summary"`
	HasChapters   bool   `json:"has_chapters"`
	HasEntities   bool   `json:"has_entities"`
	HasSentiment  bool   `json:"has_sentiment"`
	SchemaVersion int    `json:"schema_version"`
	Revision      string `json:"revision"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

const selectColumns = `
	cache_key, source_url, text, utterances, summary,
	chapters, entities, sentiment, schema_version, revision,
	created_at, updated_at
`

// storedBytesExpr is the UTF-8 byte size of a row's blob columns.
const storedBytesExpr = `
	length(CAST(text AS BLOB)) + length(CAST(utterances AS BLOB)) + length(CAST(summary AS BLOB))
	+ COALESCE(length(CAST(chapters AS BLOB)), 0)
	+ COALESCE(length(CAST(entities AS BLOB)), 0)
	+ COALESCE(length(CAST(sentiment AS BLOB)), 0)
`

// Upsert writes row under row.Key, replacing any existing row in full.
// created_at of an existing row is preserved. The statement is atomic, so
// readers never observe a partially written row; concurrent writers to the
// same key resolve last-write-wins.
func Upsert(ctx context.Context, db *sql.DB, row *Row) error {
	query := `
		INSERT INTO transcripts (
			cache_key, source_url, text, utterances, summary,
			chapters, entities, sentiment, schema_version, revision,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			source_url     = excluded.source_url,
			text           = excluded.text,
			utterances     = excluded.utterances,
			summary        = excluded.summary,
			chapters       = excluded.chapters,
			entities       = excluded.entities,
			sentiment      = excluded.sentiment,
			schema_version = excluded.schema_version,
			revision       = excluded.revision,
			updated_at     = excluded.updated_at
	`

	b := row.Blob
	_, err := db.ExecContext(ctx, query,
		row.Key, row.SourceURL, b.Text, b.Utterances, b.Summary,
		toNullString(b.Chapters), toNullString(b.Entities), toNullString(b.Sentiment),
		b.SchemaVersion, row.Revision, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Get retrieves the row stored under key.
func Get(ctx context.Context, db *sql.DB, key string) (*Row, error) {
	query := `SELECT ` + selectColumns + ` FROM transcripts WHERE cache_key = ?`

	row := db.QueryRowContext(ctx, query, key)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(key)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// Delete removes the row stored under key. Reports whether a row existed.
func Delete(ctx context.Context, db *sql.DB, key string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM transcripts WHERE cache_key = ?`, key)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// List returns row summaries ordered by updated_at descending, plus the
// total row count.
func List(ctx context.Context, db *sql.DB, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT cache_key, source_url, length(text),
			` + storedBytesExpr + `,
			summary != '', chapters IS NOT NULL, entities IS NOT NULL, sentiment IS NOT NULL,
			schema_version, revision, created_at, updated_at
		FROM transcripts
		ORDER BY updated_at DESC, cache_key ASC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.Key, &s.SourceURL, &s.TextChars, &s.StoredBytes,
			&s.HasSummary, &s.HasChapters, &s.HasEntities, &s.HasSentiment,
			&s.SchemaVersion, &s.Revision, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// Totals returns the number of stored rows and the bytes their fields occupy.
func Totals(ctx context.Context, db *sql.DB) (count int, bytes int64, err error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(` + storedBytesExpr + `), 0)
		FROM transcripts
	`
	if err := db.QueryRowContext(ctx, query).Scan(&count, &bytes); err != nil {
		return 0, 0, errors.NewInternal(err)
	}
	return count, bytes, nil
}

// StreamForExport returns all rows ordered by cache key. Caller closes rows.
func StreamForExport(ctx context.Context, db *sql.DB) (*sql.Rows, error) {
	query := `SELECT ` + selectColumns + ` FROM transcripts ORDER BY cache_key ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ScanRowFromRows scans the current row of a StreamForExport result.
func ScanRowFromRows(rows *sql.Rows) (*Row, error) {
	return scanRow(rows)
}

// scanRow scans a single row into a Row struct.
func scanRow(s rowScanner) (*Row, error) {
	var (
		r         Row
		chapters  sql.NullString
		entities  sql.NullString
		sentiment sql.NullString
	)

	err := s.Scan(
		&r.Key, &r.SourceURL, &r.Blob.Text, &r.Blob.Utterances, &r.Blob.Summary,
		&chapters, &entities, &sentiment, &r.Blob.SchemaVersion, &r.Revision,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Blob.Chapters = fromNullString(chapters)
	r.Blob.Entities = fromNullString(entities)
	r.Blob.Sentiment = fromNullString(sentiment)

	return &r, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
