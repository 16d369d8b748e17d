// Package intake turns a local file reference into a Document record with
// best-effort text extraction.
package intake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/checksum"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/storage"
	"github.com/starford/nexus/internal/store"
)

// Extractor pulls text out of a non-plain-text source file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Engine ingests files into Document records.
type Engine struct {
	store      store.Store
	vault      storage.Provider
	extractors map[string]Extractor
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithVault copies every ingested source into v under <document-id>/<filename>.
func WithVault(v storage.Provider) Option {
	return func(e *Engine) { e.vault = v }
}

// WithExtractor registers x for files with extension ext (without the dot).
// Plain-text files are always read directly and ignore extractors.
func WithExtractor(ext string, x Extractor) Option {
	return func(e *Engine) { e.extractors[strings.ToLower(strings.TrimPrefix(ext, "."))] = x }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine that persists through s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		extractors: make(map[string]Extractor),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extension returns the lower-cased extension of path without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ContentType maps an extension to the content type recorded on a document.
func ContentType(ext string) string {
	switch ext {
	case "pdf":
		return models.ContentTypePDF
	case "txt":
		return models.ContentTypeText
	default:
		return models.ContentTypeBinary
	}
}

// Prepare builds a Document for the file at path without persisting it.
// It fails with apperr.ErrIntake when the file cannot be opened or is a
// directory; content problems leave RawContent unset.
func (e *Engine) Prepare(ctx context.Context, path string) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrIntake, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrIntake, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", apperr.ErrIntake, path)
	}

	ext := Extension(path)
	doc := &models.Document{
		ID:          models.NewEntityID(),
		Filename:    filepath.Base(path),
		ContentType: ContentType(ext),
		Size:        info.Size(),
		IngestedAt:  e.now(),
		Department:  models.DepartmentGeneral,
	}

	data, err := io.ReadAll(f)
	if err != nil {
		e.logger.Warn("intake: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return doc, nil
	}
	doc.Checksum = checksum.Sum(data)
	doc.Size = int64(len(data))

	if ext == "txt" {
		if utf8.Valid(data) {
			text := string(data)
			doc.RawContent = &text
		} else {
			e.logger.Warn("intake: text file is not valid UTF-8", slog.String("path", path))
		}
	} else if x, ok := e.extractors[ext]; ok {
		text, err := x.Extract(ctx, path)
		if err != nil {
			e.logger.Warn("intake: extraction failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			doc.RawContent = &text
		}
	}

	if e.vault != nil {
		rel, err := e.vault.Archive(doc.ID, doc.Filename, data)
		if err != nil {
			e.logger.Warn("intake: archive failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			doc.StoredPath = rel
		}
	}

	return doc, nil
}

// Ingest prepares and persists a Document for the file at path.
// The document keeps the General department until something classifies it.
func (e *Engine) Ingest(ctx context.Context, path string) (*models.Document, error) {
	doc, err := e.Prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, doc); err != nil {
		e.Release(doc)
		return nil, err
	}
	e.logger.Debug("intake: ingested",
		slog.String("id", doc.ID.String()),
		slog.String("filename", doc.Filename),
		slog.String("content_type", doc.ContentType))
	return doc, nil
}

// Release removes the vault copy of a document that was never persisted.
func (e *Engine) Release(doc *models.Document) {
	if e.vault == nil || doc == nil || doc.StoredPath == "" {
		return
	}
	if err := e.vault.Remove(doc.StoredPath); err != nil {
		e.logger.Warn("intake: release failed", slog.String("stored_path", doc.StoredPath), slog.String("error", err.Error()))
		return
	}
	doc.StoredPath = ""
}
