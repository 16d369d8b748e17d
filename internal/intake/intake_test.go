package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/nexus/internal/apperr"
	"github.com/starford/nexus/internal/checksum"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/storage"
	"github.com/starford/nexus/internal/store"
)

type failingStore struct {
	store.Store
}

func (failingStore) Save(context.Context, ...models.Record) error {
	return apperr.ErrStoreWrite
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestContentTypeMapping(t *testing.T) {
	tests := map[string]string{
		"pdf":  models.ContentTypePDF,
		"txt":  models.ContentTypeText,
		"bin":  models.ContentTypeBinary,
		"md":   models.ContentTypeBinary,
		"":     models.ContentTypeBinary,
		"docx": models.ContentTypeBinary,
	}
	for ext, want := range tests {
		if got := ContentType(ext); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", ext, got, want)
		}
	}
	if Extension("/tmp/Report.PDF") != "pdf" {
		t.Errorf("Extension should lower-case, got %q", Extension("/tmp/Report.PDF"))
	}
}

func TestIngestText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("meeting notes"))
	s := store.NewMemory()
	e := New(s)

	doc, err := e.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.Filename != "notes.txt" || doc.ContentType != models.ContentTypeText {
		t.Errorf("doc = %+v", doc)
	}
	if doc.RawContent == nil || *doc.RawContent != "meeting notes" {
		t.Errorf("raw content = %v, want file text", doc.RawContent)
	}
	if doc.Department != models.DepartmentGeneral {
		t.Errorf("department = %q, want General", doc.Department)
	}
	if doc.Checksum != checksum.Sum([]byte("meeting notes")) || doc.Size != 13 {
		t.Errorf("checksum/size = %s/%d", doc.Checksum, doc.Size)
	}

	stored, err := s.Document(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("stored document: %v", err)
	}
	if stored.Text() != "meeting notes" {
		t.Errorf("stored text = %q", stored.Text())
	}
}

func TestIngestPDFNotExtracted(t *testing.T) {
	path := writeFile(t, t.TempDir(), "report.pdf", []byte("%PDF-1.4 invoice"))
	doc, err := New(store.NewMemory()).Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.ContentType != models.ContentTypePDF {
		t.Errorf("content type = %q", doc.ContentType)
	}
	if doc.RawContent != nil {
		t.Errorf("raw content = %q, want unset", *doc.RawContent)
	}
}

func TestIngestBinary(t *testing.T) {
	path := writeFile(t, t.TempDir(), "data.bin", []byte{0x00, 0x01, 0x02})
	doc, err := New(store.NewMemory()).Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.ContentType != models.ContentTypeBinary {
		t.Errorf("content type = %q", doc.ContentType)
	}
	if doc.RawContent != nil {
		t.Error("binary content must not be extracted")
	}
}

func TestIngestInvalidUTF8TextLeavesContentUnset(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.txt", []byte{0xff, 0xfe, 0xfd})
	doc, err := New(store.NewMemory()).Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.RawContent != nil {
		t.Errorf("raw content = %q, want unset", *doc.RawContent)
	}
}

func TestIngestMissingFile(t *testing.T) {
	s := store.NewMemory()
	_, err := New(s).Ingest(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	if !errors.Is(err, apperr.ErrIntake) {
		t.Fatalf("err = %v, want ErrIntake", err)
	}
	docs, _ := s.Documents(context.Background(), store.DocumentFilter{})
	if len(docs) != 0 {
		t.Errorf("no document should be created, got %d", len(docs))
	}
}

func TestIngestUnopenableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := writeFile(t, t.TempDir(), "locked.txt", []byte("secret ledger"))
	if err := os.Chmod(path, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	s := store.NewMemory()
	_, err := New(s).Ingest(context.Background(), path)
	if !errors.Is(err, apperr.ErrIntake) {
		t.Fatalf("err = %v, want ErrIntake", err)
	}
	docs, _ := s.Documents(context.Background(), store.DocumentFilter{})
	if len(docs) != 0 {
		t.Errorf("no document should be created, got %d", len(docs))
	}
}

func TestIngestDirectory(t *testing.T) {
	_, err := New(store.NewMemory()).Ingest(context.Background(), t.TempDir())
	if !errors.Is(err, apperr.ErrIntake) {
		t.Fatalf("err = %v, want ErrIntake", err)
	}
}

func TestIngestStoreFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", []byte("x"))
	vault, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e := New(failingStore{store.NewMemory()}, WithVault(vault))
	_, err = e.Ingest(context.Background(), path)
	if !errors.Is(err, apperr.ErrStoreWrite) {
		t.Fatalf("err = %v, want ErrStoreWrite", err)
	}
}

func TestExtractorUsedForNonText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scan.pdf", []byte("%PDF"))
	x := ExtractorFunc(func(_ context.Context, p string) (string, error) {
		if p != path {
			t.Errorf("extractor path = %q", p)
		}
		return "ledger totals", nil
	})
	doc, err := New(store.NewMemory(), WithExtractor(".PDF", x)).Prepare(context.Background(), path)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if doc.Text() != "ledger totals" {
		t.Errorf("text = %q", doc.Text())
	}
}

func TestExtractorFailureIsSoft(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scan.pdf", []byte("%PDF"))
	x := ExtractorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
	doc, err := New(store.NewMemory(), WithExtractor("pdf", x)).Prepare(context.Background(), path)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if doc.RawContent != nil {
		t.Error("failed extraction must leave content unset")
	}
}

func TestVaultArchiveAndRelease(t *testing.T) {
	path := writeFile(t, t.TempDir(), "contract.txt", []byte("signed agreement"))
	vault, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e := New(store.NewMemory(), WithVault(vault))

	doc, err := e.Prepare(context.Background(), path)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := doc.ID.String() + "/contract.txt"
	if doc.StoredPath != want {
		t.Fatalf("stored path = %q, want %q", doc.StoredPath, want)
	}
	data, err := vault.Read(doc.StoredPath)
	if err != nil || string(data) != "signed agreement" {
		t.Fatalf("vault copy = %q, %v", data, err)
	}

	stored := doc.StoredPath
	e.Release(doc)
	if doc.StoredPath != "" {
		t.Error("Release should clear StoredPath")
	}
	if _, err := vault.Read(stored); err == nil {
		t.Error("vault copy should be removed")
	}
}
