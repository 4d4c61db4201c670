//go:generate mockgen -destination=./mocks/archive.go . DataManager,Archive

// Package archive defines the contract through which the patcher reads and repacks game
// archives, a registry resolving location IDs to implementations, and adapters for the
// MPQ and zip formats.
package archive

import (
	"context"
	"io"
)

// DataManager opens archives of one format.
type DataManager interface {
	// ID is the location ID mods use to address archives of this format.
	ID() string
	// Load opens the archive at archivePath for reading and staging changes.
	Load(ctx context.Context, archivePath string) (Archive, error)
	// OnRepackedArchives runs after every archive of this format touched by an apply
	// has been written.
	OnRepackedArchives(ctx context.Context, archivePaths []string) error
}

// Archive is an opened archive. Put and Remove only stage changes; Write repacks.
type Archive interface {
	// Files lists the entry names, including staged additions and excluding staged removals.
	Files() []string
	// Open reads the current content of an entry.
	Open(name string) (io.ReadCloser, error)
	// Put replaces the entry matching name or adds a new one.
	Put(name string, r io.Reader) error
	// Remove deletes the entry matching name.
	Remove(name string) error
	// Write repacks the archive with all staged changes. Once started it runs to
	// completion; ctx is only consulted before the write begins.
	Write(ctx context.Context) error
	// Close releases the archive and its staging files.
	Close() error
}
