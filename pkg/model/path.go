// Package model provides the data structures shared by the library, history and patcher:
// logical file paths, the library manifest and the file history snapshot.
package model

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/modpatch/pkg/errors"
)

// PatchFilePath identifies a logical file: either a file in the physical game directory
// (empty Location) or a file inside the archive at Location, handled by the archive
// manager identified by LocationID.
type PatchFilePath struct {
	Location   string `json:"location,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	FilePath   string `json:"file_path"`
}

// PathKey is the canonical form of a full file path: slash separated, cleaned and
// lower-cased. Two paths referring to the same logical file have equal keys.
type PathKey struct {
	s string
}

// LocationKey identifies one location (physical directory or archive) of an apply pass.
type LocationKey struct {
	Location PathKey
	ID       string
}

// NewPatchFilePath creates a PatchFilePath with slash-normalized components.
func NewPatchFilePath(location, locationID, filePath string) PatchFilePath {
	return PatchFilePath{
		Location:   CleanPath(location),
		LocationID: strings.ToLower(strings.TrimSpace(locationID)),
		FilePath:   CleanPath(filePath),
	}
}

// PhysicalPath creates a PatchFilePath for a file in the game directory.
func PhysicalPath(filePath string) PatchFilePath {
	return NewPatchFilePath("", "", filePath)
}

// CleanPath converts p to a cleaned, relative, forward-slash path. The empty string is
// returned for empty or root paths.
func CleanPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// NormalizePath returns the PathKey of p.
func NormalizePath(p string) PathKey {
	return PathKey{s: strings.ToLower(CleanPath(p))}
}

// String returns the canonical path.
func (k PathKey) String() string {
	return k.s
}

// IsZero reports whether k is the key of the empty path.
func (k PathKey) IsZero() bool {
	return k.s == ""
}

// IsArchived reports whether the file lives inside an archive.
func (p PatchFilePath) IsArchived() bool {
	return p.Location != ""
}

// FullFilePath returns Location/FilePath, or FilePath for physical files.
func (p PatchFilePath) FullFilePath() string {
	if p.Location == "" {
		return p.FilePath
	}
	return p.Location + "/" + p.FilePath
}

// Key returns the canonical key used to merge modifications.
func (p PatchFilePath) Key() PathKey {
	return NormalizePath(p.FullFilePath())
}

// LocationKey returns the key of the location that owns this file.
func (p PatchFilePath) LocationKey() LocationKey {
	return LocationKey{Location: NormalizePath(p.Location), ID: strings.ToLower(p.LocationID)}
}

// NativePath resolves the physical file below root. For archived files it resolves the
// archive file itself.
func (p PatchFilePath) NativePath(root string) string {
	if p.IsArchived() {
		return filepath.Join(root, filepath.FromSlash(p.Location))
	}
	return filepath.Join(root, filepath.FromSlash(p.FilePath))
}

// Validate checks that the path is relative, stays inside its root and names an archive
// manager when it is archived.
func (p PatchFilePath) Validate() error {
	if err := validateRelative(p.FilePath); err != nil {
		return errors.Wrapf(errors.ErrInvalidPath, "file path %q: %v", p.FilePath, err)
	}
	return ValidateLocation(p.Location, p.LocationID)
}

// ValidateLocation checks an archive location and its manager ID. The empty location
// is the game directory and must not carry an ID.
func ValidateLocation(location, locationID string) error {
	if location == "" {
		if locationID != "" {
			return errors.Wrapf(errors.ErrInvalidPath, "location id %q without location", locationID)
		}
		return nil
	}
	if err := validateRelative(location); err != nil {
		return errors.Wrapf(errors.ErrInvalidPath, "location %q: %v", location, err)
	}
	if strings.TrimSpace(locationID) == "" {
		return errors.Wrapf(errors.ErrInvalidPath, "location %q has no location id", location)
	}
	return nil
}

func (p PatchFilePath) String() string {
	if p.Location == "" {
		return p.FilePath
	}
	return fmt.Sprintf("%s[%s]/%s", p.Location, p.LocationID, p.FilePath)
}

func validateRelative(p string) error {
	raw := strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if raw == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(raw, "/") || filepath.IsAbs(raw) || (len(raw) > 1 && raw[1] == ':') {
		return fmt.Errorf("absolute path")
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return fmt.Errorf("path escapes its root")
		}
	}
	return nil
}
