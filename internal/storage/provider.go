// Package storage defines traversal-safe file access rooted at a directory.
// It backs both the vault and the publication repository working copy.
package storage

import "time"

// Entry is a lightweight description of a file returned by List.
type Entry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Provider is the interface for rooted file operations. All paths are
// relative to the root and may not escape it.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Abs resolves a relative path to an absolute one under the root.
	Abs(path string) (string, error)
	// Rel converts an absolute path under the root to a relative one.
	Rel(abs string) (string, error)
	// List returns every .md file under dir.
	List(dir string) ([]Entry, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path, creating parent directories.
	Write(path string, content []byte) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
}
