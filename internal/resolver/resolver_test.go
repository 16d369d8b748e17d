package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/graph"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/store"
)

type brokenSource struct{}

func (brokenSource) LinksFrom(context.Context, uuid.UUID) ([]models.Link, error) {
	return nil, errors.New("disk on fire")
}

func TestContextForNoLinks(t *testing.T) {
	r := New(graph.New(store.NewMemory()), nil)
	got := r.ContextFor(context.Background(), uuid.New())
	if len(got) != 1 || got[0] != NoContextMessage {
		t.Errorf("ContextFor = %q, want sentinel", got)
	}
}

func TestContextForLines(t *testing.T) {
	ctx := context.Background()
	g := graph.New(store.NewMemory())
	src, t1, t2 := uuid.New(), uuid.New(), uuid.New()
	if _, err := g.LinkDefault(ctx, src, t1, "owns"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.LinkDefault(ctx, src, t2, "references"); err != nil {
		t.Fatal(err)
	}
	// Incoming links do not contribute.
	if _, err := g.LinkDefault(ctx, t1, src, "owned_by"); err != nil {
		t.Fatal(err)
	}

	got := New(g, nil).ContextFor(ctx, src)
	want := []string{
		"Linked to " + t1.String() + " via owns",
		"Linked to " + t2.String() + " via references",
	}
	if len(got) != len(want) {
		t.Fatalf("ContextFor = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestContextForLookupFailure(t *testing.T) {
	got := New(brokenSource{}, nil).ContextFor(context.Background(), uuid.New())
	if len(got) != 1 || got[0] != NoContextMessage {
		t.Errorf("ContextFor = %q, want sentinel on failure", got)
	}
}
