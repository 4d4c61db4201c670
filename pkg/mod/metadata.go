package mod

import (
	"strings"
	"time"

	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/hashicorp/go-version"
)

// Hook events a mod can declare scripts for.
const (
	HookPostApply = "post_apply"
)

// Metadata is the content of metadata.json.
type Metadata struct {
	ID            string            `json:"id"`
	Version       string            `json:"version"`
	FormatVersion int               `json:"format_version"`
	Name          string            `json:"name"`
	Author        string            `json:"author,omitempty"`
	Description   string            `json:"description,omitempty"`
	Website       string            `json:"website,omitempty"`
	Games         []GameTarget      `json:"games,omitempty"`
	Changelog     []ChangelogEntry  `json:"changelog,omitempty"`
	Thumbnail     string            `json:"thumbnail,omitempty"`
	Hooks         map[string]string `json:"hooks,omitempty"`
	// Hashes maps payload paths (relative to the package root) to their sha256 sums.
	Hashes map[string]string `json:"hashes,omitempty"`
}

// GameTarget names a game the mod was made for. Versions is an optional go-version
// constraint such as ">= 1.2, < 2.0".
type GameTarget struct {
	ID       string `json:"id"`
	Versions string `json:"versions,omitempty"`
}

// ChangelogEntry is one released version of a mod.
type ChangelogEntry struct {
	Version     string    `json:"version"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// ArchiveLocation declares an archive the mod ships files for.
type ArchiveLocation struct {
	Location   string `json:"location"`
	LocationID string `json:"location_id"`
}

// FileTable is the content of the optional file_table.json.
type FileTable struct {
	RemovedFiles []model.PatchFilePath `json:"removed_files,omitempty"`
	Archives     []ArchiveLocation     `json:"archives,omitempty"`
}

// GetVersion returns the parsed mod version or nil if it is not a valid version.
func (m *Metadata) GetVersion() *version.Version {
	v, err := version.NewVersion(m.Version)
	if err != nil {
		return nil
	}
	return v
}

// DisplayName returns Name, falling back to ID.
func (m *Metadata) DisplayName() string {
	if strings.TrimSpace(m.Name) == "" {
		return m.ID
	}
	return m.Name
}

// MatchGame reports whether the target accepts the given game. An empty gameVersion
// or an empty constraint matches any version.
func (g GameTarget) MatchGame(gameID, gameVersion string) bool {
	if !strings.EqualFold(g.ID, gameID) {
		return false
	}
	if g.Versions == "" || gameVersion == "" {
		return true
	}
	constraint, err := version.NewConstraint(g.Versions)
	if err != nil {
		return false
	}
	v, err := version.NewVersion(gameVersion)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}
