// Package library persists the mods installed into one game installation, their order
// and enabled state, and the history of the last apply, in a hidden directory inside
// the game directory.
package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/glorpus-work/modpatch/pkg/history"
	"github.com/glorpus-work/modpatch/pkg/mod"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/modpkg"
	"github.com/glorpus-work/modpatch/pkg/resource"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDirName is the library directory inside the game directory.
	DefaultDirName = "." + fsutil.AppName
	// ManifestFile lists the installed mods.
	ManifestFile = "library.json"
	// ModsDir holds one extracted directory per installed mod.
	ModsDir = "mods"

	defaultMaxConcurrentLoads = 4
)

// Options configures a library.
type Options struct {
	// DirName is the library directory relative to the game directory.
	DirName string
	// GameID and GameVersion are checked against the games a mod targets on install.
	GameID      string
	GameVersion string
	// MaxConcurrentLoads bounds LoadEnabledMods.
	MaxConcurrentLoads int
}

// Library is the mod library of one game installation.
type Library struct {
	mu       sync.RWMutex
	gameDir  string
	dir      string
	opts     Options
	manifest *model.LibraryManifest
}

// Open opens the library of the game installed at gameDir, creating it on first use.
// An interrupted history build is repaired before the manifest is read.
func Open(gameDir string, opts Options) (*Library, error) {
	if opts.DirName == "" {
		opts.DirName = DefaultDirName
	}
	if opts.MaxConcurrentLoads < 1 {
		opts.MaxConcurrentLoads = defaultMaxConcurrentLoads
	}

	absGameDir, err := filepath.Abs(gameDir)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "game directory %s: %v", gameDir, err)
	}
	info, err := os.Stat(absGameDir)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "game directory %s does not exist", gameDir)
	}

	l := &Library{
		gameDir: absGameDir,
		dir:     filepath.Join(absGameDir, filepath.FromSlash(opts.DirName)),
		opts:    opts,
	}
	if err := fsutil.EnsureDir(filepath.Join(l.dir, ModsDir)); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}
	if err := history.Recover(l.dir); err != nil {
		return nil, errors.Wrap(err, "failed to recover history")
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) load() error {
	data, err := os.ReadFile(l.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			l.manifest = model.NewLibraryManifest()
			return nil
		}
		return fmt.Errorf("failed to read library manifest: %w", err)
	}

	manifest := &model.LibraryManifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return errors.Wrapf(errors.ErrLibraryCorrupt, "failed to parse %s: %v", ManifestFile, err)
	}
	if manifest.FormatVersion > model.ManifestFormatVersion {
		return errors.Wrapf(errors.ErrUnsupportedManifest, "version %d, newest supported is %d",
			manifest.FormatVersion, model.ManifestFormatVersion)
	}
	if manifest.Mods == nil {
		manifest.Mods = make([]*model.ModManifestEntry, 0)
	}
	l.manifest = manifest
	return nil
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// GameDir returns the game installation directory.
func (l *Library) GameDir() string {
	return l.gameDir
}

// ModDir returns the directory an installed mod is extracted to.
func (l *Library) ModDir(id string) string {
	return filepath.Join(l.dir, ModsDir, strings.ToLower(id))
}

func (l *Library) manifestPath() string {
	return filepath.Join(l.dir, ManifestFile)
}

// Save writes the manifest atomically.
func (l *Library) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *Library) saveLocked() error {
	l.manifest.FormatVersion = model.ManifestFormatVersion
	l.manifest.LastUpdate = time.Now()

	data, err := json.MarshalIndent(l.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal library manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(l.manifestPath(), bytes.NewReader(data), fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to write library manifest: %w", err)
	}
	return nil
}

// Mods returns a copy of the installed mods in priority order.
func (l *Library) Mods() []*model.ModManifestEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	mods := make([]*model.ModManifestEntry, len(l.manifest.Mods))
	for i, e := range l.manifest.Mods {
		entry := *e
		mods[i] = &entry
	}
	return mods
}

// Entry returns a copy of the manifest entry of id.
func (l *Library) Entry(id string) (*model.ModManifestEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, _ := l.manifest.Find(id)
	if e == nil {
		return nil, errors.Wrapf(errors.ErrModNotFound, "mod %s", id)
	}
	entry := *e
	return &entry, nil
}

// InstallMod installs the mod package (or unpacked mod directory) at source. A new mod
// is enabled and gets the highest priority; reinstalling a mod keeps its position,
// enabled state and variant.
func (l *Library) InstallMod(ctx context.Context, source string) (*mod.Mod, error) {
	pkg, err := modpkg.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pkg.Close() }()

	m, err := mod.Load(pkg.FS())
	if err != nil {
		return nil, err
	}
	if err := m.Verify(); err != nil {
		return nil, err
	}
	if !m.SupportsGame(l.opts.GameID, l.opts.GameVersion) {
		return nil, errors.Wrapf(errors.ErrGameNotSupported, "mod %s does not support %s %s",
			m.ID(), l.opts.GameID, l.opts.GameVersion)
	}

	staging, err := os.MkdirTemp(filepath.Join(l.dir, ModsDir), ".install-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := pkg.ExtractTo(ctx, staging); err != nil {
		return nil, fmt.Errorf("failed to extract mod %s: %w", m.ID(), err)
	}
	size, err := fsutil.DirSize(staging)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	target := l.ModDir(m.ID())
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("failed to remove previous version of %s: %w", m.ID(), err)
	}
	if err := os.Rename(staging, target); err != nil {
		return nil, fmt.Errorf("failed to install mod %s: %w", m.ID(), err)
	}

	installed, err := mod.LoadDir(target)
	if err != nil {
		return nil, err
	}

	info := model.InstallInfo{
		Source:     source,
		ModVersion: m.Version().String(),
		Size:       size,
		Date:       time.Now(),
	}
	if entry, _ := l.manifest.Find(m.ID()); entry != nil {
		entry.Install = info
		if !installed.HasVariant(entry.Variant) {
			logger.Warn("Selected variant no longer exists, using default", logger.Fields{"mod": m.ID(), "variant": entry.Variant})
			entry.Variant = ""
		}
		logger.Info("Mod updated", logger.Fields{"mod": m.ID(), "version": info.ModVersion})
	} else {
		entry := &model.ModManifestEntry{ID: m.ID(), Enabled: true, Install: info}
		l.manifest.Mods = append([]*model.ModManifestEntry{entry}, l.manifest.Mods...)
		logger.Info("Mod installed", logger.Fields{"mod": m.ID(), "version": info.ModVersion})
	}

	if err := l.saveLocked(); err != nil {
		return nil, err
	}
	return installed, nil
}

// UninstallMod removes a mod from the library. Its files stay in the game directory
// until the next apply reverts them.
func (l *Library) UninstallMod(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, idx := l.manifest.Find(id)
	if entry == nil {
		return errors.Wrapf(errors.ErrModNotFound, "mod %s", id)
	}
	l.manifest.Mods = append(l.manifest.Mods[:idx], l.manifest.Mods[idx+1:]...)
	if err := l.saveLocked(); err != nil {
		return err
	}
	if err := os.RemoveAll(l.ModDir(entry.ID)); err != nil {
		return fmt.Errorf("failed to remove files of mod %s: %w", entry.ID, err)
	}
	logger.Info("Mod uninstalled", logger.Fields{"mod": entry.ID})
	return nil
}

// SetEnabled enables or disables a mod.
func (l *Library) SetEnabled(id string, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.manifest.Find(id)
	if entry == nil {
		return errors.Wrapf(errors.ErrModNotFound, "mod %s", id)
	}
	entry.Enabled = enabled
	return l.saveLocked()
}

// SetVariant selects the variant of a mod. The empty string selects the default.
func (l *Library) SetVariant(id, variant string) error {
	m, err := l.LoadMod(id)
	if err != nil {
		return err
	}
	if !m.HasVariant(variant) {
		return errors.Wrapf(errors.ErrVariantNotFound, "mod %s has no variant %q (available: %s)",
			id, variant, strings.Join(m.Variants(), ", "))
	}
	if strings.EqualFold(variant, model.DefaultVariant) {
		variant = ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.manifest.Find(id)
	if entry == nil {
		return errors.Wrapf(errors.ErrModNotFound, "mod %s", id)
	}
	entry.Variant = variant
	return l.saveLocked()
}

// Move changes the priority of a mod. Index 0 is the highest priority; out of range
// indexes are clamped.
func (l *Library) Move(id string, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, from := l.manifest.Find(id)
	if entry == nil {
		return errors.Wrapf(errors.ErrModNotFound, "mod %s", id)
	}
	mods := append(l.manifest.Mods[:from:from], l.manifest.Mods[from+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(mods) {
		index = len(mods)
	}
	mods = append(mods[:index], append([]*model.ModManifestEntry{entry}, mods[index:]...)...)
	l.manifest.Mods = mods
	return l.saveLocked()
}

// LoadMod loads an installed mod.
func (l *Library) LoadMod(id string) (*mod.Mod, error) {
	l.mu.RLock()
	entry, _ := l.manifest.Find(id)
	l.mu.RUnlock()
	if entry == nil {
		return nil, errors.Wrapf(errors.ErrModNotFound, "mod %s", id)
	}
	return mod.LoadDir(l.ModDir(entry.ID))
}

// EnabledMod is an enabled mod loaded for an apply.
type EnabledMod struct {
	Entry *model.ModManifestEntry
	Mod   *mod.Mod
	// AddedFiles are the files of the selected variant.
	AddedFiles []resource.Resource
}

// LoadEnabledMods loads every enabled mod in priority order. Mods are loaded in
// parallel; the first failure cancels the others and is returned.
func (l *Library) LoadEnabledMods(ctx context.Context) ([]*EnabledMod, error) {
	l.mu.RLock()
	entries := l.manifest.Enabled()
	l.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.MaxConcurrentLoads)
	loaded := make([]*EnabledMod, len(entries))
	for i, e := range entries {
		entry := *e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := mod.LoadDir(l.ModDir(entry.ID))
			if err != nil {
				return errors.Wrapf(err, "mod %s", entry.ID)
			}
			added, err := m.AddedFiles(entry.SelectedVariant())
			if err != nil {
				return err
			}
			loaded[i] = &EnabledMod{Entry: &entry, Mod: m, AddedFiles: added}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// ReadHistory returns the history of the last apply.
func (l *Library) ReadHistory() (*history.Snapshot, error) {
	return history.Read(l.dir)
}
