// Package storage defines the file-system abstraction the catalog document
// and its backups are persisted through.
package storage

import "time"

// FileMeta describes one file returned by List.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for rooted file operations.
type Provider interface {
	// Root returns the absolute directory every path is resolved against.
	Root() string
	// List returns metadata for every file under dir whose name ends in suffix.
	List(dir, suffix string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// Delete removes the file at path.
	Delete(path string) error
}
