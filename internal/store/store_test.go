package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/models"
)

func testDB(t *testing.T) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "nexus-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// eachStore runs fn against every backing.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, testDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func newLink(src, dst uuid.UUID, typ string) *models.Link {
	return &models.Link{
		ID:               uuid.New(),
		SourceID:         src,
		TargetID:         dst,
		RelationshipType: typ,
		Weight:           models.DefaultWeight,
		CreatedAt:        time.Now(),
	}
}

func newDocument(name string, content *string) *models.Document {
	return &models.Document{
		ID:          uuid.New(),
		Filename:    name,
		ContentType: models.ContentTypeText,
		RawContent:  content,
		IngestedAt:  time.Now(),
		Department:  models.DepartmentGeneral,
	}
}

func strPtr(s string) *string { return &s }

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"links", "documents", "artifacts"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestOpenTwiceIsIdempotent(t *testing.T) {
	f, err := os.CreateTemp("", "nexus-reopen-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	a, b := uuid.New(), uuid.New()
	if err := db.Save(context.Background(), newLink(a, b, "owns")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	db.Close()

	db, err = Open(f.Name())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db.Close()
	links, err := db.Links(context.Background(), LinkFilter{SourceID: a})
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("links after reopen = %d, want 1", len(links))
	}
}

func TestLinksFilterAndOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a, b, c := uuid.New(), uuid.New(), uuid.New()
		l1 := newLink(a, b, "owns")
		l2 := newLink(a, c, "references")
		l3 := newLink(c, a, "blocks")
		for _, l := range []*models.Link{l1, l2, l3} {
			if err := s.Save(ctx, l); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}

		from, err := s.Links(ctx, LinkFilter{SourceID: a})
		if err != nil {
			t.Fatalf("Links: %v", err)
		}
		if len(from) != 2 || from[0].ID != l1.ID || from[1].ID != l2.ID {
			t.Errorf("links from a = %+v, want [l1 l2] in insertion order", from)
		}

		to, _ := s.Links(ctx, LinkFilter{TargetID: a})
		if len(to) != 1 || to[0].ID != l3.ID {
			t.Errorf("links to a = %+v, want [l3]", to)
		}

		typed, _ := s.Links(ctx, LinkFilter{SourceID: a, RelationshipType: "references"})
		if len(typed) != 1 || typed[0].TargetID != c {
			t.Errorf("typed links = %+v", typed)
		}

		none, _ := s.Links(ctx, LinkFilter{SourceID: uuid.New()})
		if none == nil || len(none) != 0 {
			t.Errorf("unknown source should give empty non-nil slice, got %#v", none)
		}
	})
}

func TestLinkRoundTripFields(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		l := newLink(uuid.New(), uuid.New(), "owns")
		l.Weight = 0.25
		if err := s.Save(ctx, l); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, _ := s.Links(ctx, LinkFilter{SourceID: l.SourceID})
		if len(got) != 1 {
			t.Fatalf("got %d links", len(got))
		}
		g := got[0]
		if g.ID != l.ID || g.TargetID != l.TargetID || g.RelationshipType != "owns" || g.Weight != 0.25 {
			t.Errorf("round trip mismatch: %+v vs %+v", g, l)
		}
		if !g.CreatedAt.Equal(l.CreatedAt) {
			t.Errorf("created_at = %v, want %v", g.CreatedAt, l.CreatedAt)
		}
	})
}

func TestDuplicateLinkIDRejected(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		l := newLink(uuid.New(), uuid.New(), "owns")
		if err := s.Save(ctx, l); err != nil {
			t.Fatalf("Save: %v", err)
		}
		err := s.Save(ctx, l)
		if !errors.Is(err, apperr.ErrStoreWrite) {
			t.Fatalf("duplicate save err = %v, want ErrStoreWrite", err)
		}
		got, _ := s.Links(ctx, LinkFilter{SourceID: l.SourceID})
		if len(got) != 1 {
			t.Errorf("links = %d, want 1", len(got))
		}
	})
}

func TestSaveBatchIsAtomic(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := newDocument("a.txt", strPtr("hello"))
		orphan := &models.Artifact{
			ID:         uuid.New(),
			DocumentID: uuid.New(),
			Type:       models.ArtifactSummary,
			CreatedAt:  time.Now(),
		}
		err := s.Save(ctx, doc, orphan)
		if !errors.Is(err, apperr.ErrStoreWrite) {
			t.Fatalf("Save err = %v, want ErrStoreWrite", err)
		}
		if _, err := s.Document(ctx, doc.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("document from failed batch should not be visible, err = %v", err)
		}
	})
}

func TestDocumentUpsertAndArtifacts(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := newDocument("notes.txt", strPtr("research notes"))
		art := &models.Artifact{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Type:       models.ArtifactSummary,
			Content:    "Auto-generated summary for notes.txt",
			CreatedAt:  time.Now(),
		}
		// Artifact before its document in the same batch is fine.
		if err := s.Save(ctx, art, doc); err != nil {
			t.Fatalf("Save: %v", err)
		}

		doc.Department = models.DepartmentRND
		if err := s.Save(ctx, doc); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		got, err := s.Document(ctx, doc.ID)
		if err != nil {
			t.Fatalf("Document: %v", err)
		}
		if got.Department != models.DepartmentRND {
			t.Errorf("department = %q, want R&D", got.Department)
		}
		if got.RawContent == nil || *got.RawContent != "research notes" {
			t.Errorf("raw content = %v", got.RawContent)
		}

		arts, err := s.Artifacts(ctx, ArtifactFilter{DocumentID: doc.ID})
		if err != nil {
			t.Fatalf("Artifacts: %v", err)
		}
		if len(arts) != 1 || arts[0].Type != models.ArtifactSummary {
			t.Errorf("artifacts = %+v", arts)
		}

		docs, _ := s.Documents(ctx, DocumentFilter{})
		if len(docs) != 1 {
			t.Errorf("documents = %d, want 1 after upsert", len(docs))
		}
	})
}

func TestDocumentNilRawContent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := newDocument("report.pdf", nil)
		doc.ContentType = models.ContentTypePDF
		if err := s.Save(ctx, doc); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, _ := s.Document(ctx, doc.ID)
		if got.RawContent != nil {
			t.Errorf("raw content = %q, want unset", *got.RawContent)
		}
	})
}

func TestDocumentsFilterAndPaging(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)
		var ids []uuid.UUID
		for i, dept := range []models.Department{models.DepartmentFinance, models.DepartmentCRM, models.DepartmentFinance} {
			d := newDocument("d.txt", nil)
			d.Department = dept
			d.IngestedAt = base.Add(time.Duration(i) * time.Minute)
			d.Checksum = string(rune('a' + i))
			ids = append(ids, d.ID)
			if err := s.Save(ctx, d); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}

		finance, _ := s.Documents(ctx, DocumentFilter{Department: models.DepartmentFinance})
		if len(finance) != 2 || finance[0].ID != ids[2] {
			t.Errorf("finance docs = %+v, want newest first", finance)
		}

		page, _ := s.Documents(ctx, DocumentFilter{Limit: 1, Offset: 1})
		if len(page) != 1 || page[0].ID != ids[1] {
			t.Errorf("page = %+v, want middle document", page)
		}

		byChecksum, _ := s.Documents(ctx, DocumentFilter{Checksum: "a"})
		if len(byChecksum) != 1 || byChecksum[0].ID != ids[0] {
			t.Errorf("by checksum = %+v", byChecksum)
		}
	})
}

func TestDeleteDocumentCascades(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := newDocument("x.txt", nil)
		art := &models.Artifact{ID: uuid.New(), DocumentID: doc.ID, Type: models.ArtifactSummary, CreatedAt: time.Now()}
		link := newLink(doc.ID, uuid.New(), "references")
		if err := s.Save(ctx, doc, art, link); err != nil {
			t.Fatalf("Save: %v", err)
		}

		if err := s.DeleteDocument(ctx, doc.ID); err != nil {
			t.Fatalf("DeleteDocument: %v", err)
		}
		if _, err := s.Document(ctx, doc.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("document still present: %v", err)
		}
		arts, _ := s.Artifacts(ctx, ArtifactFilter{DocumentID: doc.ID})
		if len(arts) != 0 {
			t.Errorf("artifacts after delete = %d, want 0", len(arts))
		}
		links, _ := s.Links(ctx, LinkFilter{SourceID: doc.ID})
		if len(links) != 1 {
			t.Errorf("links must survive document deletion, got %d", len(links))
		}

		if err := s.DeleteDocument(ctx, doc.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("second delete err = %v, want ErrNotFound", err)
		}
	})
}

func TestSearchDocuments(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		hit := newDocument("q1.txt", strPtr("the uniqueword appears here"))
		miss := newDocument("other.txt", strPtr("nothing to see"))
		if err := s.Save(ctx, hit, miss); err != nil {
			t.Fatalf("Save: %v", err)
		}
		results, err := s.SearchDocuments(ctx, "uniqueword", 10)
		if err != nil {
			t.Fatalf("SearchDocuments: %v", err)
		}
		if len(results) != 1 || results[0].DocumentID != hit.ID {
			t.Errorf("results = %+v, want 1 hit for q1.txt", results)
		}
		if !strings.Contains(results[0].Snippet, "uniqueword") {
			t.Errorf("snippet = %q", results[0].Snippet)
		}
	})
}

func TestMemoryClosedRejectsWrites(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	err := m.Save(context.Background(), newLink(uuid.New(), uuid.New(), "owns"))
	if !errors.Is(err, apperr.ErrStoreWrite) {
		t.Errorf("err = %v, want ErrStoreWrite", err)
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("Ping should fail after Close")
	}
}

func TestPing(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func TestSearchDocumentsLiteralQuery(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		terms := newDocument("terms.txt", strPtr("payment terms net-30 on invoice"))
		progress := newDocument("progress.txt", strPtr("rollout 100% complete"))
		other := newDocument("other_doc.txt", strPtr("plain words"))
		if err := s.Save(ctx, terms, progress, other); err != nil {
			t.Fatalf("Save: %v", err)
		}

		results, err := s.SearchDocuments(ctx, "net-30", 10)
		if err != nil {
			t.Fatalf("search net-30: %v", err)
		}
		if len(results) != 1 || results[0].DocumentID != terms.ID {
			t.Errorf("net-30 results = %+v", results)
		}

		// Each query may only match the document that literally contains it.
		only := map[string]uuid.UUID{
			`"`:                uuid.Nil,
			`%`:                progress.ID,
			`_`:                other.ID,
			`\`:                uuid.Nil,
			`content:invoice`:  uuid.Nil,
			`invoice" OR "x`:   uuid.Nil,
			`plain NOT words*`: uuid.Nil,
		}
		for q, want := range only {
			results, err := s.SearchDocuments(ctx, q, 10)
			if err != nil {
				t.Errorf("search %q: %v", q, err)
				continue
			}
			for _, r := range results {
				if r.DocumentID != want {
					t.Errorf("search %q matched %s", q, r.Filename)
				}
			}
		}
	})
}

func TestQueryEscaping(t *testing.T) {
	if got := ftsPhrase(`say "hi"`); got != `"say ""hi"""` {
		t.Errorf("ftsPhrase = %s", got)
	}
	if got := likeContains(`50%_a\b`); got != `%50\%\_a\\b%` {
		t.Errorf("likeContains = %s", got)
	}
	if hasSearchTerms(`"%_-`) || !hasSearchTerms("é") {
		t.Error("hasSearchTerms misclassified input")
	}
}
