package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tmpPattern = ".nexus-tmp-*"

// FS is a Provider on the local file system.
type FS struct {
	root string
}

// NewFS opens an existing vault directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// StoredPath is the vault-relative location of a document's archived source.
func StoredPath(id uuid.UUID, filename string) (string, error) {
	if id == uuid.Nil {
		return "", errors.New("storage: nil document id")
	}
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || strings.HasPrefix(filename, ".nexus-tmp-") {
		return "", fmt.Errorf("storage: invalid filename %q", filename)
	}
	return path.Join(id.String(), filename), nil
}

// locate maps a stored path onto the file system. Only the two-segment
// "<uuid>/<filename>" shape is accepted.
func (f *FS) locate(storedPath string) (dir, file string, err error) {
	idPart, name, ok := strings.Cut(storedPath, "/")
	if !ok {
		return "", "", fmt.Errorf("storage: malformed stored path %q", storedPath)
	}
	id, err := uuid.Parse(idPart)
	if err != nil || id.String() != idPart {
		return "", "", fmt.Errorf("storage: malformed stored path %q", storedPath)
	}
	if _, err := StoredPath(id, name); err != nil {
		return "", "", err
	}
	dir = filepath.Join(f.root, idPart)
	return dir, filepath.Join(dir, name), nil
}

// Archive writes content under the document's directory through a synced
// temp file and a rename, so readers never see a partial copy.
func (f *FS) Archive(id uuid.UUID, filename string, content []byte) (string, error) {
	rel, err := StoredPath(id, filename)
	if err != nil {
		return "", err
	}
	dir, dst, _ := f.locate(rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	committed = true
	return rel, nil
}

// Read returns the archived bytes.
func (f *FS) Read(storedPath string) ([]byte, error) {
	_, file, err := f.locate(storedPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", storedPath, err)
	}
	return data, nil
}

// Remove deletes the archived file. A missing file wraps os.ErrNotExist.
func (f *FS) Remove(storedPath string) error {
	dir, file, err := f.locate(storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil {
		return fmt.Errorf("storage: remove %s: %w", storedPath, err)
	}
	// Other files may have been placed next to it by hand; keep the dir then.
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("storage: remove dir: %w", err)
		}
	}
	return nil
}
