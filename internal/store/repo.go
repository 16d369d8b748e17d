package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/models"
)

// Save writes every record inside one transaction.
func (db *SQLite) Save(ctx context.Context, records ...models.Record) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, r := range records {
		switch rec := r.(type) {
		case *models.Link:
			err = insertLink(ctx, tx, rec)
		case *models.Document:
			err = upsertDocument(ctx, tx, rec)
		case *models.Artifact:
			err = insertArtifact(ctx, tx, rec)
		default:
			err = fmt.Errorf("unsupported record type %T", r)
		}
		if err != nil {
			return writeErr("save", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return writeErr("commit", err)
	}
	return nil
}

func insertLink(ctx context.Context, tx *sql.Tx, l *models.Link) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO links (id, source_id, target_id, relationship_type, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.SourceID, l.TargetID, l.RelationshipType, l.Weight, l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, d *models.Document) error {
	var raw sql.NullString
	if d.RawContent != nil {
		raw = sql.NullString{String: *d.RawContent, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, content_type, raw_content, checksum, size, stored_path, ingested_at, department)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename     = excluded.filename,
			content_type = excluded.content_type,
			raw_content  = excluded.raw_content,
			checksum     = excluded.checksum,
			size         = excluded.size,
			stored_path  = excluded.stored_path,
			ingested_at  = excluded.ingested_at,
			department   = excluded.department
	`, d.ID, d.Filename, d.ContentType, raw, d.Checksum, d.Size, d.StoredPath, d.IngestedAt.UTC(), string(d.Department))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return ftsUpsert(ctx, tx, d.ID.String(), d.Filename, d.Text())
}

func insertArtifact(ctx context.Context, tx *sql.Tx, a *models.Artifact) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, document_id, type, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.DocumentID, string(a.Type), a.Content, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// Links returns all links matching f in insertion order.
func (db *SQLite) Links(ctx context.Context, f LinkFilter) ([]models.Link, error) {
	var (
		where []string
		args  []any
	)
	if f.SourceID != uuid.Nil {
		where = append(where, "source_id = ?")
		args = append(args, f.SourceID)
	}
	if f.TargetID != uuid.Nil {
		where = append(where, "target_id = ?")
		args = append(args, f.TargetID)
	}
	if f.RelationshipType != "" {
		where = append(where, "relationship_type = ?")
		args = append(args, f.RelationshipType)
	}

	q := `SELECT id, source_id, target_id, relationship_type, weight, created_at FROM links`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY rowid"

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: links: %w", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.RelationshipType, &l.Weight, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const documentColumns = `id, filename, content_type, raw_content, checksum, size, stored_path, ingested_at, department`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (models.Document, error) {
	var (
		d    models.Document
		raw  sql.NullString
		dept string
	)
	if err := s.Scan(&d.ID, &d.Filename, &d.ContentType, &raw, &d.Checksum, &d.Size, &d.StoredPath, &d.IngestedAt, &dept); err != nil {
		return d, err
	}
	if raw.Valid {
		d.RawContent = &raw.String
	}
	d.Department = models.Department(dept)
	return d, nil
}

// Document returns a single document by ID.
func (db *SQLite) Document(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: document: %w", err)
	}
	return &d, nil
}

// Documents returns a page of documents, newest first.
func (db *SQLite) Documents(ctx context.Context, f DocumentFilter) ([]models.Document, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		where []string
		args  []any
	)
	if f.Department != "" {
		where = append(where, "department = ?")
		args = append(args, string(f.Department))
	}
	if f.Checksum != "" {
		where = append(where, "checksum = ?")
		args = append(args, f.Checksum)
	}

	q := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ingested_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: documents: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Artifacts returns artifacts for a document, oldest first.
func (db *SQLite) Artifacts(ctx context.Context, f ArtifactFilter) ([]models.Artifact, error) {
	q := `SELECT id, document_id, type, content, created_at FROM artifacts`
	var args []any
	if f.DocumentID != uuid.Nil {
		q += " WHERE document_id = ?"
		args = append(args, f.DocumentID)
	}
	q += " ORDER BY rowid"

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: artifacts: %w", err)
	}
	defer rows.Close()

	out := []models.Artifact{}
	for rows.Next() {
		var (
			a   models.Artifact
			typ string
		)
		if err := rows.Scan(&a.ID, &a.DocumentID, &typ, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		a.Type = models.ArtifactType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document. Artifacts cascade through the foreign key.
func (db *SQLite) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return writeErr("delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	if err := ftsDelete(ctx, tx, id.String()); err != nil {
		return writeErr("delete fts", err)
	}
	if err := tx.Commit(); err != nil {
		return writeErr("commit", err)
	}
	return nil
}
