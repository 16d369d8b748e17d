// Package intelservice is the facade shared by the REST and MCP surfaces.
package intelservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/classify"
	"github.com/starford/nexus/internal/graph"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/pipeline"
	"github.com/starford/nexus/internal/resolver"
	"github.com/starford/nexus/internal/storage"
	"github.com/starford/nexus/internal/store"
)

// Link directions accepted by Links.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Relation names an entity a processed document should be linked to.
type Relation struct {
	ID               uuid.UUID `json:"id"`
	RelationshipType string    `json:"relationship_type,omitempty"`
}

// DocumentDetail is a document together with its artifacts.
type DocumentDetail struct {
	models.Document
	Artifacts []models.Artifact `json:"artifacts"`
}

// Classification is the result of classifying free text.
type Classification struct {
	Department models.Department `json:"department"`
	Keyword    string            `json:"keyword"`
}

// Service coordinates graph, pipeline and store operations.
type Service struct {
	store      store.Store
	graph      *graph.Graph
	pipeline   *pipeline.Pipeline
	resolver   *resolver.Resolver
	classifier *classify.RuleClassifier
	vault      storage.Provider
	logger     *slog.Logger
	onDelete   func(id uuid.UUID)
	pathRoots  []string
}

// Option configures a Service.
type Option func(*Service)

// WithVault lets DeleteDocument remove archived source copies.
func WithVault(v storage.Provider) Option {
	return func(s *Service) { s.vault = v }
}

// WithClassifier sets the classifier used by Classify and Rules. It should be
// the same one the pipeline uses.
func WithClassifier(c *classify.RuleClassifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDeleteCallback registers cb to run after a document is deleted.
func WithDeleteCallback(cb func(id uuid.UUID)) Option {
	return func(s *Service) { s.onDelete = cb }
}

// WithPathRoots limits ProcessDocument to files under these directories.
// Without roots, path-based processing is refused; uploads are unaffected.
func WithPathRoots(roots ...string) Option {
	return func(s *Service) { s.pathRoots = append(s.pathRoots, roots...) }
}

// NewService creates a new intelligence service.
func NewService(st store.Store, g *graph.Graph, p *pipeline.Pipeline, opts ...Option) *Service {
	s := &Service{
		store:      st,
		graph:      g,
		pipeline:   p,
		classifier: classify.NewRuleClassifier(nil),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = resolver.New(g, s.logger)
	return s
}

// Link creates a directed link. A nil weight means models.DefaultWeight.
func (s *Service) Link(ctx context.Context, source, target uuid.UUID, relType string, weight *float64) (*models.Link, error) {
	w := models.DefaultWeight
	if weight != nil {
		w = *weight
	}
	return s.graph.Link(ctx, source, target, relType, w)
}

// Links returns the outgoing ("out" or "") or incoming ("in") links of id.
func (s *Service) Links(ctx context.Context, id uuid.UUID, direction string) ([]models.Link, error) {
	switch direction {
	case "", DirectionOut:
		return s.graph.LinksFrom(ctx, id)
	case DirectionIn:
		return s.graph.LinksTo(ctx, id)
	default:
		return nil, fmt.Errorf("%w: direction must be %q or %q", apperr.ErrInvalid, DirectionOut, DirectionIn)
	}
}

// Context returns the human-readable context lines for id.
func (s *Service) Context(ctx context.Context, id uuid.UUID) []string {
	return s.resolver.ContextFor(ctx, id)
}

// ProcessDocument runs the pipeline on a server-local file, which must
// resolve (after symlinks) to a location inside one of the path roots.
func (s *Service) ProcessDocument(ctx context.Context, path string, related []Relation) (*DocumentDetail, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: path is required", apperr.ErrInvalid)
	}
	resolved, err := s.confine(path)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, resolved, related)
}

// confine resolves path and checks it against the path roots. A path that
// does not exist is checked as written, so intake reports it as missing.
func (s *Service) confine(path string) (string, error) {
	if len(s.pathRoots) == 0 {
		return "", fmt.Errorf("%w: processing server paths is disabled", apperr.ErrInvalid)
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return "", fmt.Errorf("%w: path %q: %w", apperr.ErrInvalid, path, err)
	}
	for _, root := range s.pathRoots {
		base, err := resolvePath(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return resolved, nil
	}
	return "", fmt.Errorf("%w: path %q is outside the allowed roots", apperr.ErrInvalid, path)
}

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil
	}
	return resolved, err
}

func (s *Service) process(ctx context.Context, path string, related []Relation) (*DocumentDetail, error) {
	opts := make([]pipeline.ProcessOption, len(related))
	for i, rel := range related {
		opts[i] = pipeline.WithRelatedEntity(rel.ID, rel.RelationshipType)
	}
	doc, err := s.pipeline.Process(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return s.Document(ctx, doc.ID)
}

// ProcessUpload stages r under filename in a temporary directory and processes it.
// The staged copy is removed afterwards.
func (s *Service) ProcessUpload(ctx context.Context, filename string, r io.Reader, related []Relation) (*DocumentDetail, error) {
	name := filepath.Base(filepath.Clean(filename))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: invalid filename %q", apperr.ErrInvalid, filename)
	}

	dir, err := os.MkdirTemp("", "nexus-upload-*")
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	return s.process(ctx, path, related)
}

// Document returns a document with its artifacts, or apperr.ErrNotFound.
func (s *Service) Document(ctx context.Context, id uuid.UUID) (*DocumentDetail, error) {
	doc, err := s.store.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	arts, err := s.store.Artifacts(ctx, store.ArtifactFilter{DocumentID: id})
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{Document: *doc, Artifacts: nonNilSlice(arts)}, nil
}

// ListDocuments returns documents newest first.
func (s *Service) ListDocuments(ctx context.Context, f store.DocumentFilter) ([]models.Document, error) {
	if f.Department != "" && !f.Department.Valid() {
		return nil, fmt.Errorf("%w: unknown department %q", apperr.ErrInvalid, f.Department)
	}
	docs, err := s.store.Documents(ctx, f)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(docs), nil
}

// DeleteDocument removes a document, its artifacts and its archived copy.
// Links that mention the document are kept.
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.store.Document(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if s.vault != nil && doc.StoredPath != "" {
		if err := s.vault.Remove(doc.StoredPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("vault cleanup failed",
				slog.String("id", id.String()),
				slog.String("stored_path", doc.StoredPath),
				slog.String("error", err.Error()))
		}
	}
	if s.onDelete != nil {
		s.onDelete(id)
	}
	return nil
}

// Search runs a text search over documents.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrInvalid)
	}
	res, err := s.store.SearchDocuments(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Classify reports the department for text and the keyword that decided it.
func (s *Service) Classify(text string) Classification {
	d, kw := s.classifier.Explain(text)
	return Classification{Department: d, Keyword: kw}
}

// Rules returns the classifier rule table in priority order.
func (s *Service) Rules() []classify.Rule {
	return s.classifier.Rules()
}

// Ready reports whether the backing store is usable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
