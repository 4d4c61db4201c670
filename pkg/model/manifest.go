package model

import (
	"strings"
	"time"
)

// ManifestFormatVersion is the library manifest version written by this build.
const ManifestFormatVersion = 1

// DefaultVariant is the distinguished variant every mod may ship files for.
const DefaultVariant = "default"

// InstallInfo describes where an installed mod came from.
type InstallInfo struct {
	Source     string    `json:"source"`
	ModVersion string    `json:"mod_version"`
	Size       int64     `json:"size"`
	Date       time.Time `json:"date"`
}

// ModManifestEntry is one installed mod. Its position in LibraryManifest.Mods is its
// priority: index 0 wins conflicting writes.
type ModManifestEntry struct {
	ID      string      `json:"id"`
	Enabled bool        `json:"enabled"`
	Variant string      `json:"variant,omitempty"`
	Install InstallInfo `json:"install"`
}

// SelectedVariant returns the variant to apply, defaulting to DefaultVariant.
func (e *ModManifestEntry) SelectedVariant() string {
	if e.Variant == "" {
		return DefaultVariant
	}
	return e.Variant
}

// LibraryManifest is the persisted list of installed mods.
type LibraryManifest struct {
	FormatVersion int                 `json:"format_version"`
	LastUpdate    time.Time           `json:"last_update"`
	Mods          []*ModManifestEntry `json:"mods"`
}

// NewLibraryManifest creates an empty manifest.
func NewLibraryManifest() *LibraryManifest {
	return &LibraryManifest{
		FormatVersion: ManifestFormatVersion,
		LastUpdate:    time.Now(),
		Mods:          make([]*ModManifestEntry, 0),
	}
}

// Find returns the entry with the given ID (case-insensitive) and its index, or nil and -1.
func (m *LibraryManifest) Find(id string) (*ModManifestEntry, int) {
	for i, entry := range m.Mods {
		if strings.EqualFold(entry.ID, id) {
			return entry, i
		}
	}
	return nil, -1
}

// Enabled returns the enabled entries in priority order.
func (m *LibraryManifest) Enabled() []*ModManifestEntry {
	var enabled []*ModManifestEntry
	for _, entry := range m.Mods {
		if entry.Enabled {
			enabled = append(enabled, entry)
		}
	}
	return enabled
}
