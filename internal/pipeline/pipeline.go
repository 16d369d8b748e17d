// Package pipeline runs one document end to end: intake, classification,
// artifact creation and a single atomic save.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/classify"
	"github.com/starford/nexus/internal/graph"
	"github.com/starford/nexus/internal/intake"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/store"
)

// DefaultRelationship tags links from a processed document to related entities.
const DefaultRelationship = "attached_to"

// EventCallback is called after a document has been processed and saved.
type EventCallback func(doc models.Document)

// Pipeline orchestrates intake, classification and persistence.
type Pipeline struct {
	intake     *intake.Engine
	classifier classify.Classifier
	graph      *graph.Graph
	store      store.Store
	logger     *slog.Logger
	now        func() time.Time
	onDone     EventCallback
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c classify.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the timestamp source for artifacts.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithEventCallback registers cb to run after each processed document.
func WithEventCallback(cb EventCallback) Option {
	return func(p *Pipeline) { p.onDone = cb }
}

// New creates a Pipeline. Related-entity links are validated by g.
func New(s store.Store, in *intake.Engine, g *graph.Graph, opts ...Option) *Pipeline {
	p := &Pipeline{
		intake:     in,
		classifier: classify.NewRuleClassifier(nil),
		graph:      g,
		store:      s,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type processConfig struct {
	related []relation
}

type relation struct {
	id      uuid.UUID
	relType string
	weight  float64
}

// ProcessOption adjusts a single Process call.
type ProcessOption func(*processConfig)

// WithRelatedEntity links the processed document to id in the same save.
// An empty relType means DefaultRelationship.
func WithRelatedEntity(id uuid.UUID, relType string) ProcessOption {
	if relType == "" {
		relType = DefaultRelationship
	}
	return func(c *processConfig) {
		c.related = append(c.related, relation{id: id, relType: relType, weight: models.DefaultWeight})
	}
}

// SummaryContent is the placeholder summary text for a document.
func SummaryContent(filename string) string {
	return "Auto-generated summary for " + filename
}

// Process ingests the file at path, classifies it, attaches a Summary artifact
// and saves everything at once. Nothing is visible to readers unless the whole
// save succeeds. Calling Process twice on the same file yields two documents.
func (p *Pipeline) Process(ctx context.Context, path string, opts ...ProcessOption) (*models.Document, error) {
	var cfg processConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	doc, err := p.intake.Prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	doc.Department = p.classifier.Classify(doc.Text())

	artifact := &models.Artifact{
		ID:         models.NewEntityID(),
		DocumentID: doc.ID,
		Type:       models.ArtifactSummary,
		Content:    SummaryContent(doc.Filename),
		CreatedAt:  p.now(),
	}

	records := []models.Record{doc, artifact}
	links := make([]*models.Link, 0, len(cfg.related))
	for _, rel := range cfg.related {
		l, err := p.graph.NewLink(doc.ID, rel.id, rel.relType, rel.weight)
		if err != nil {
			p.intake.Release(doc)
			return nil, fmt.Errorf("pipeline: related entity: %w", err)
		}
		records = append(records, l)
		links = append(links, l)
	}

	if err := p.store.Save(ctx, records...); err != nil {
		p.intake.Release(doc)
		return nil, err
	}

	p.logger.Info("pipeline: processed",
		slog.String("id", doc.ID.String()),
		slog.String("filename", doc.Filename),
		slog.String("department", string(doc.Department)),
		slog.Int("links", len(cfg.related)))

	for _, l := range links {
		p.graph.Announce(*l)
	}
	if p.onDone != nil {
		p.onDone(*doc)
	}
	return doc, nil
}
