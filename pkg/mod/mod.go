// Package mod loads installed or packaged mods and maps their payload to logical file paths.
package mod

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/resource"
	"github.com/hashicorp/go-version"
)

const (
	// MetadataFile is the mod metadata at the package root.
	MetadataFile = "metadata.json"
	// FileTableFile declares removed files and archive locations.
	FileTableFile = "file_table.json"
	// FilesDir holds one subdirectory per variant.
	FilesDir = "files"
	// FormatVersion is the newest mod format this build understands.
	FormatVersion = 1
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Mod is a loaded mod. Its payload is read lazily through the underlying file system.
type Mod struct {
	Metadata  Metadata
	FileTable FileTable

	version *version.Version
	fsys    fs.FS
}

// Load reads and validates the mod rooted at fsys.
func Load(fsys fs.FS) (*Mod, error) {
	m := &Mod{fsys: fsys}

	if err := readJSON(fsys, MetadataFile, &m.Metadata); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(errors.ErrInvalidModFormat, "%s not found", MetadataFile)
		}
		return nil, errors.Wrapf(errors.ErrInvalidModFormat, "failed to read %s: %v", MetadataFile, err)
	}
	if err := readJSON(fsys, FileTableFile, &m.FileTable); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(errors.ErrInvalidModFormat, "failed to read %s: %v", FileTableFile, err)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadDir loads the mod extracted at dir.
func LoadDir(dir string) (*Mod, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(errors.ErrModNotFound, "mod directory %s: %v", dir, err)
	}
	return Load(os.DirFS(dir))
}

func readJSON(fsys fs.FS, name string, v any) error {
	f, err := fsys.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewDecoder(f).Decode(v)
}

func (m *Mod) validate() error {
	md := &m.Metadata
	if !idPattern.MatchString(md.ID) {
		return errors.Wrapf(errors.ErrInvalidModFormat, "invalid mod id %q", md.ID)
	}
	if md.FormatVersion > FormatVersion {
		return errors.Wrapf(errors.ErrUnsupportedModFormat,
			"mod %s uses format version %d, newest supported is %d", md.ID, md.FormatVersion, FormatVersion)
	}
	if md.FormatVersion < 0 {
		return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s has format version %d", md.ID, md.FormatVersion)
	}
	m.version = md.GetVersion()
	if m.version == nil {
		return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s has invalid version %q", md.ID, md.Version)
	}
	for _, g := range md.Games {
		if g.ID == "" {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s declares a game without id", md.ID)
		}
		if g.Versions != "" {
			if _, err := version.NewConstraint(g.Versions); err != nil {
				return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s game %s: %v", md.ID, g.ID, err)
			}
		}
	}

	for i, a := range m.FileTable.Archives {
		if a.Location == "" {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s declares an archive without location", md.ID)
		}
		if err := model.ValidateLocation(a.Location, a.LocationID); err != nil {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s archive %q: %v", md.ID, a.Location, err)
		}
		m.FileTable.Archives[i] = ArchiveLocation{
			Location:   model.CleanPath(a.Location),
			LocationID: strings.ToLower(strings.TrimSpace(a.LocationID)),
		}
	}
	for i, p := range m.FileTable.RemovedFiles {
		if err := p.Validate(); err != nil {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s removed file: %v", md.ID, err)
		}
		m.FileTable.RemovedFiles[i] = model.NewPatchFilePath(p.Location, p.LocationID, p.FilePath)
	}
	return nil
}

// ID returns the mod ID.
func (m *Mod) ID() string {
	return m.Metadata.ID
}

// Version returns the parsed mod version.
func (m *Mod) Version() *version.Version {
	return m.version
}

// FS returns the mod payload.
func (m *Mod) FS() fs.FS {
	return m.fsys
}

// Variants lists the variant directories below files/, sorted.
func (m *Mod) Variants() []string {
	entries, err := fs.ReadDir(m.fsys, FilesDir)
	if err != nil {
		return nil
	}
	var variants []string
	for _, e := range entries {
		if e.IsDir() {
			variants = append(variants, e.Name())
		}
	}
	sort.Strings(variants)
	return variants
}

// HasVariant reports whether the mod ships the named variant. The default variant is
// always accepted, even for mods that only remove files.
func (m *Mod) HasVariant(variant string) bool {
	if variant == "" || strings.EqualFold(variant, model.DefaultVariant) {
		return true
	}
	for _, v := range m.Variants() {
		if strings.EqualFold(v, variant) {
			return true
		}
	}
	return false
}

// AddedFiles returns the files the mod adds for variant. Files of the selected variant
// override files of the default variant with the same logical path.
func (m *Mod) AddedFiles(variant string) ([]resource.Resource, error) {
	if !m.HasVariant(variant) {
		return nil, errors.Wrapf(errors.ErrVariantNotFound, "mod %s has no variant %q", m.ID(), variant)
	}

	files := make(map[model.PathKey]resource.Resource)
	if err := m.collectVariant(model.DefaultVariant, files); err != nil {
		return nil, err
	}
	if variant != "" && !strings.EqualFold(variant, model.DefaultVariant) {
		if err := m.collectVariant(m.variantDirName(variant), files); err != nil {
			return nil, err
		}
	}

	keys := make([]model.PathKey, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	result := make([]resource.Resource, 0, len(keys))
	for _, k := range keys {
		result = append(result, files[k])
	}
	return result, nil
}

// variantDirName returns the on-disk spelling of variant.
func (m *Mod) variantDirName(variant string) string {
	for _, v := range m.Variants() {
		if strings.EqualFold(v, variant) {
			return v
		}
	}
	return variant
}

func (m *Mod) collectVariant(variant string, files map[model.PathKey]resource.Resource) error {
	root := path.Join(FilesDir, variant)
	if _, err := fs.Stat(m.fsys, root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	return fs.WalkDir(m.fsys, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel := strings.TrimPrefix(name, root+"/")
		p := m.resolve(rel)
		if err := p.Validate(); err != nil {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s file %s: %v", m.ID(), name, err)
		}
		files[p.Key()] = resource.NewFSResource(p, m.fsys, name)
		return nil
	})
}

// resolve maps a payload path to a logical path. A leading part that matches a declared
// archive location addresses a file inside that archive; the longest match wins.
func (m *Mod) resolve(rel string) model.PatchFilePath {
	key := model.NormalizePath(rel).String()
	var best *ArchiveLocation
	for i := range m.FileTable.Archives {
		a := &m.FileTable.Archives[i]
		prefix := model.NormalizePath(a.Location).String() + "/"
		if strings.HasPrefix(key, prefix) && (best == nil || len(a.Location) > len(best.Location)) {
			best = a
		}
	}
	if best == nil {
		return model.PhysicalPath(rel)
	}
	depth := strings.Count(best.Location, "/") + 1
	parts := strings.SplitN(model.CleanPath(rel), "/", depth+1)
	return model.NewPatchFilePath(best.Location, best.LocationID, parts[depth])
}

// RemovedFiles returns the files the mod deletes.
func (m *Mod) RemovedFiles() []model.PatchFilePath {
	return m.FileTable.RemovedFiles
}

// Archives returns the declared archive locations.
func (m *Mod) Archives() []ArchiveLocation {
	return m.FileTable.Archives
}

// HookScript returns the source of the script declared for event.
func (m *Mod) HookScript(event string) ([]byte, bool, error) {
	name, ok := m.Metadata.Hooks[event]
	if !ok || name == "" {
		return nil, false, nil
	}
	data, err := fs.ReadFile(m.fsys, model.CleanPath(name))
	if err != nil {
		return nil, true, errors.Wrapf(errors.ErrInvalidModFormat, "mod %s hook %s: %v", m.ID(), event, err)
	}
	return data, true, nil
}

// SupportsGame reports whether the mod targets the given game. Mods without targets
// support every game.
func (m *Mod) SupportsGame(gameID, gameVersion string) bool {
	if len(m.Metadata.Games) == 0 || gameID == "" {
		return true
	}
	for _, g := range m.Metadata.Games {
		if g.MatchGame(gameID, gameVersion) {
			return true
		}
	}
	return false
}

// Verify checks the payload against the sha256 sums declared in the metadata.
func (m *Mod) Verify() error {
	for name, want := range m.Metadata.Hashes {
		f, err := m.fsys.Open(model.CleanPath(name))
		if err != nil {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s: hashed file %s: %v", m.ID(), name, err)
		}
		h := sha256.New()
		_, err = io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			return errors.Wrapf(errors.ErrInvalidModFormat, "mod %s: failed to read %s: %v", m.ID(), name, err)
		}
		if got := fmt.Sprintf("%x", h.Sum(nil)); !strings.EqualFold(got, want) {
			return errors.Wrapf(errors.ErrModChecksum, "mod %s: %s has sum %s, expected %s", m.ID(), name, got, want)
		}
	}
	return nil
}
