//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			document_id UNINDEXED,
			filename,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id, filename, body string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE document_id = ?`, id)
	_, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (document_id, filename, body) VALUES (?, ?, ?)`,
		id, filename, body)
	if err != nil {
		return fmt.Errorf("upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE document_id = ?`, id)
	return err
}

// SearchDocuments performs an FTS5 full-text search and returns matching documents with snippets.
func (db *SQLite) SearchDocuments(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if !hasSearchTerms(query) {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT document_id,
		       filename,
		       snippet(documents_fts, 2, '<b>', '</b>', '...', 64)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsPhrase(query), limit)
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
