// Package resolver renders the outgoing links of an entity as human-readable
// context lines.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/models"
)

// NoContextMessage is returned alone when an entity has no outgoing links.
const NoContextMessage = "No linked intelligence found."

// LinkSource answers outgoing-adjacency queries. *graph.Graph satisfies it.
type LinkSource interface {
	LinksFrom(ctx context.Context, id uuid.UUID) ([]models.Link, error)
}

// Resolver builds context summaries from a LinkSource.
type Resolver struct {
	links  LinkSource
	logger *slog.Logger
}

// New creates a Resolver. A nil logger means slog.Default.
func New(links LinkSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{links: links, logger: logger}
}

// Line formats a single link as a context line.
func Line(l models.Link) string {
	return fmt.Sprintf("Linked to %s via %s", l.TargetID, l.RelationshipType)
}

// ContextFor returns one line per outgoing link of id in creation order, or a
// single NoContextMessage line. Lookup failures are logged and reported as no
// context; the result is never empty.
func (r *Resolver) ContextFor(ctx context.Context, id uuid.UUID) []string {
	links, err := r.links.LinksFrom(ctx, id)
	if err != nil {
		r.logger.Warn("resolver: links lookup failed",
			slog.String("id", id.String()),
			slog.String("error", err.Error()))
		return []string{NoContextMessage}
	}
	if len(links) == 0 {
		return []string{NoContextMessage}
	}
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = Line(l)
	}
	return out
}
