// Package storage holds the managed document vault: one directory per
// document ID containing the archived source file.
package storage

import "github.com/google/uuid"

// Provider archives document sources. Stored paths are slash-separated and
// relative to the vault root, in the form "<document-id>/<filename>".
type Provider interface {
	Archive(id uuid.UUID, filename string, content []byte) (string, error)
	Read(storedPath string) ([]byte, error)
	// Remove deletes the archived file and its document directory once empty.
	Remove(storedPath string) error
}
