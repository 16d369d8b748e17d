// Package graph maintains the directed, typed, weighted link set between
// entity identifiers and answers adjacency queries.
//
// The graph is append-only: links are never updated or deleted, and two
// links between the same pair are both kept.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/store"
)

// EventCallback is called after a link has been persisted.
type EventCallback func(l models.Link)

// Graph creates and queries links through a record store.
type Graph struct {
	store          store.Store
	logger         *slog.Logger
	now            func() time.Time
	allowSelfLoops bool
	onLink         EventCallback
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// WithSelfLoops controls whether source == target is accepted. Default true.
func WithSelfLoops(allow bool) Option {
	return func(g *Graph) { g.allowSelfLoops = allow }
}

// WithEventCallback registers cb to run after each created link.
func WithEventCallback(cb EventCallback) Option {
	return func(g *Graph) { g.onLink = cb }
}

// New creates a Graph over s.
func New(s store.Store, opts ...Option) *Graph {
	g := &Graph{
		store:          s,
		logger:         slog.Default(),
		now:            time.Now,
		allowSelfLoops: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewLink validates input and builds an unsaved link with a fresh ID and timestamp.
// Callers that batch links with other records save it themselves.
func (g *Graph) NewLink(source, target uuid.UUID, relType string, weight float64) (*models.Link, error) {
	relType = strings.TrimSpace(relType)
	checks := validation.Errors{
		"relationship_type": validation.Validate(relType, validation.Required),
		"weight":            validation.Validate(weight, validation.By(finite)),
		"source_id":         validation.Validate(source, validation.By(notNil)),
		"target_id":         validation.Validate(target, validation.By(notNil)),
	}
	if err := checks.Filter(); err != nil {
		return nil, fmt.Errorf("%w: link: %w", apperr.ErrInvalid, err)
	}
	if !g.allowSelfLoops && source == target {
		return nil, fmt.Errorf("%w: link: self loop on %s", apperr.ErrInvalid, source)
	}
	return &models.Link{
		ID:               models.NewEntityID(),
		SourceID:         source,
		TargetID:         target,
		RelationshipType: relType,
		Weight:           weight,
		CreatedAt:        g.now(),
	}, nil
}

// Link creates and persists a directed link from source to target.
func (g *Graph) Link(ctx context.Context, source, target uuid.UUID, relType string, weight float64) (*models.Link, error) {
	l, err := g.NewLink(source, target, relType, weight)
	if err != nil {
		return nil, err
	}
	if err := g.store.Save(ctx, l); err != nil {
		return nil, err
	}
	g.Announce(*l)
	return l, nil
}

// Announce logs a persisted link and runs the event callback. Callers that
// save NewLink results in their own batch call it after the save succeeds.
func (g *Graph) Announce(l models.Link) {
	g.logger.Debug("graph: linked",
		slog.String("id", l.ID.String()),
		slog.String("source", l.SourceID.String()),
		slog.String("target", l.TargetID.String()),
		slog.String("type", l.RelationshipType))
	if g.onLink != nil {
		g.onLink(l)
	}
}

// LinkDefault is Link with models.DefaultWeight.
func (g *Graph) LinkDefault(ctx context.Context, source, target uuid.UUID, relType string) (*models.Link, error) {
	return g.Link(ctx, source, target, relType, models.DefaultWeight)
}

// LinksFrom returns all links whose source is id.
func (g *Graph) LinksFrom(ctx context.Context, id uuid.UUID) ([]models.Link, error) {
	if id == uuid.Nil {
		return []models.Link{}, nil
	}
	return g.store.Links(ctx, store.LinkFilter{SourceID: id})
}

// LinksTo returns all links whose target is id.
func (g *Graph) LinksTo(ctx context.Context, id uuid.UUID) ([]models.Link, error) {
	if id == uuid.Nil {
		return []models.Link{}, nil
	}
	return g.store.Links(ctx, store.LinkFilter{TargetID: id})
}

func finite(v any) error {
	f, _ := v.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("must be a finite number")
	}
	return nil
}

func notNil(v any) error {
	if id, _ := v.(uuid.UUID); id == uuid.Nil {
		return fmt.Errorf("must not be the nil identifier")
	}
	return nil
}
