// Package store persists links, documents and artifacts.
//
// Two backings are provided: SQLite for durable use and Memory for tests and
// ephemeral runs. Both satisfy Store.
package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/models"
)

// Store is the narrow record-store interface the core depends on.
type Store interface {
	// Save persists records atomically. Documents are upserted by ID;
	// links and artifacts are inserted and never overwritten.
	Save(ctx context.Context, records ...models.Record) error
	// Links returns links matching every non-zero field of f, in insertion order.
	Links(ctx context.Context, f LinkFilter) ([]models.Link, error)
	// Document returns one document or apperr.ErrNotFound.
	Document(ctx context.Context, id uuid.UUID) (*models.Document, error)
	// Documents returns documents newest first.
	Documents(ctx context.Context, f DocumentFilter) ([]models.Document, error)
	// Artifacts returns artifacts matching f, oldest first.
	Artifacts(ctx context.Context, f ArtifactFilter) ([]models.Artifact, error)
	// DeleteDocument removes a document and its artifacts.
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	// SearchDocuments performs a text search over filenames and extracted content.
	SearchDocuments(ctx context.Context, query string, limit int) ([]SearchResult, error)
	// Ping reports whether the store can serve requests.
	Ping(ctx context.Context) error
	Close() error
}

// LinkFilter selects links by equality. uuid.Nil and "" match anything.
type LinkFilter struct {
	SourceID         uuid.UUID
	TargetID         uuid.UUID
	RelationshipType string
}

func (f LinkFilter) match(l models.Link) bool {
	if f.SourceID != uuid.Nil && l.SourceID != f.SourceID {
		return false
	}
	if f.TargetID != uuid.Nil && l.TargetID != f.TargetID {
		return false
	}
	if f.RelationshipType != "" && l.RelationshipType != f.RelationshipType {
		return false
	}
	return true
}

// DocumentFilter selects documents. A zero Limit means defaultListLimit.
type DocumentFilter struct {
	Department models.Department
	Checksum   string
	Limit      int
	Offset     int
}

func (f DocumentFilter) match(d models.Document) bool {
	if f.Department != "" && d.Department != f.Department {
		return false
	}
	if f.Checksum != "" && d.Checksum != f.Checksum {
		return false
	}
	return true
}

// ArtifactFilter selects artifacts by owning document.
type ArtifactFilter struct {
	DocumentID uuid.UUID
}

// SearchResult represents one search hit.
type SearchResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Snippet    string    `json:"snippet"`
}

const (
	defaultListLimit   = 50
	defaultSearchLimit = 20
)

// ftsPhrase quotes a user query as a single FTS5 phrase so operators and
// column filters in it are matched literally.
func ftsPhrase(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// hasSearchTerms reports whether query contains anything a tokenizer keeps.
func hasSearchTerms(query string) bool {
	return strings.IndexFunc(query, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains builds a LIKE pattern, used with ESCAPE '\', matching query
// anywhere in the value.
func likeContains(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

func writeErr(op string, err error) error {
	return fmt.Errorf("%w: store: %s: %w", apperr.ErrStoreWrite, op, err)
}
