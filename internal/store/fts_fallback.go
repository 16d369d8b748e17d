//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the documents table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _ string) error {
	// Raw content is already stored in the documents table.
	return nil
}

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

// SearchDocuments performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *SQLite) SearchDocuments(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	like := likeContains(query)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, filename, substr(coalesce(raw_content, ''), 1, 200)
		FROM documents
		WHERE filename LIKE ? ESCAPE '\' OR raw_content LIKE ? ESCAPE '\'
		ORDER BY ingested_at DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocumentID, &r.Filename, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
