// Package storage defines the site file-system abstraction.
package storage

import "github.com/starford/kiln/internal/models"

// Provider is the interface for site file operations. Paths are relative
// to the site root and use forward slashes.
type Provider interface {
	// List returns metadata for every tracked file under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Tracked reports whether path has one of the tracked extensions.
	Tracked(path string) bool
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	Delete(path string) error
	Exists(path string) bool
}
