package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/models"
)

// Memory is an in-process Store. It keeps insertion order and mirrors the
// SQLite constraints so tests observe the same semantics.
type Memory struct {
	mu        sync.RWMutex
	links     []models.Link
	linkIDs   map[uuid.UUID]struct{}
	docs      map[uuid.UUID]models.Document
	docOrder  []uuid.UUID
	artifacts []models.Artifact
	closed    bool
}

// Verify *Memory satisfies Store at compile time.
var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		linkIDs: make(map[uuid.UUID]struct{}),
		docs:    make(map[uuid.UUID]models.Document),
	}
}

// Save validates the whole batch before applying any of it.
func (m *Memory) Save(_ context.Context, records ...models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return writeErr("save", errClosed)
	}

	batchDocs := make(map[uuid.UUID]struct{})
	batchLinks := make(map[uuid.UUID]struct{})
	artifactIDs := make(map[uuid.UUID]struct{}, len(m.artifacts))
	for _, a := range m.artifacts {
		artifactIDs[a.ID] = struct{}{}
	}
	for _, r := range records {
		if d, ok := r.(*models.Document); ok {
			batchDocs[d.ID] = struct{}{}
		}
	}

	for _, r := range records {
		switch rec := r.(type) {
		case *models.Link:
			if strings.TrimSpace(rec.RelationshipType) == "" {
				return writeErr("save", fmt.Errorf("insert link: empty relationship type"))
			}
			_, dup := m.linkIDs[rec.ID]
			_, dupBatch := batchLinks[rec.ID]
			if dup || dupBatch {
				return writeErr("save", fmt.Errorf("insert link: duplicate id %s", rec.ID))
			}
			batchLinks[rec.ID] = struct{}{}
		case *models.Document:
		case *models.Artifact:
			if _, ok := artifactIDs[rec.ID]; ok {
				return writeErr("save", fmt.Errorf("insert artifact: duplicate id %s", rec.ID))
			}
			_, existing := m.docs[rec.DocumentID]
			_, inBatch := batchDocs[rec.DocumentID]
			if !existing && !inBatch {
				return writeErr("save", fmt.Errorf("insert artifact: unknown document %s", rec.DocumentID))
			}
			artifactIDs[rec.ID] = struct{}{}
		default:
			return writeErr("save", fmt.Errorf("unsupported record type %T", r))
		}
	}

	for _, r := range records {
		switch rec := r.(type) {
		case *models.Link:
			m.links = append(m.links, *rec)
			m.linkIDs[rec.ID] = struct{}{}
		case *models.Document:
			if _, ok := m.docs[rec.ID]; !ok {
				m.docOrder = append(m.docOrder, rec.ID)
			}
			m.docs[rec.ID] = cloneDocument(*rec)
		case *models.Artifact:
			m.artifacts = append(m.artifacts, *rec)
		}
	}
	return nil
}

// Links returns matching links in insertion order.
func (m *Memory) Links(_ context.Context, f LinkFilter) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Link{}
	for _, l := range m.links {
		if f.match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Document returns a copy of a stored document.
func (m *Memory) Document(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	d = cloneDocument(d)
	return &d, nil
}

// Documents returns a page of documents, newest first.
func (m *Memory) Documents(_ context.Context, f DocumentFilter) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	matched := make([]models.Document, 0, len(m.docOrder))
	for i := len(m.docOrder) - 1; i >= 0; i-- {
		d := m.docs[m.docOrder[i]]
		if f.match(d) {
			matched = append(matched, cloneDocument(d))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].IngestedAt.After(matched[j].IngestedAt)
	})

	if f.Offset >= len(matched) {
		return []models.Document{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], nil
}

// Artifacts returns matching artifacts, oldest first.
func (m *Memory) Artifacts(_ context.Context, f ArtifactFilter) ([]models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Artifact{}
	for _, a := range m.artifacts {
		if f.DocumentID == uuid.Nil || a.DocumentID == f.DocumentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// DeleteDocument removes a document and cascades to its artifacts.
func (m *Memory) DeleteDocument(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.docs, id)
	for i, did := range m.docOrder {
		if did == id {
			m.docOrder = append(m.docOrder[:i], m.docOrder[i+1:]...)
			break
		}
	}
	kept := m.artifacts[:0]
	for _, a := range m.artifacts {
		if a.DocumentID != id {
			kept = append(kept, a)
		}
	}
	m.artifacts = kept
	return nil
}

// SearchDocuments matches query case-insensitively against filename and content.
func (m *Memory) SearchDocuments(_ context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q := strings.ToLower(query)
	out := []SearchResult{}
	for i := len(m.docOrder) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.docs[m.docOrder[i]]
		text := d.Text()
		if !strings.Contains(strings.ToLower(d.Filename), q) && !strings.Contains(strings.ToLower(text), q) {
			continue
		}
		snippet := []rune(text)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		out = append(out, SearchResult{DocumentID: d.ID, Filename: d.Filename, Snippet: string(snippet)})
	}
	return out, nil
}

var errClosed = errors.New("store is closed")

// Ping fails once the store is closed.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return nil
}

// Close marks the store closed; later writes fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneDocument(d models.Document) models.Document {
	if d.RawContent != nil {
		s := *d.RawContent
		d.RawContent = &s
	}
	return d
}
