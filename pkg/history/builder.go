package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/resource"
)

// Mode controls how saved bytes of the previous history reach the new one.
type Mode int

const (
	// ModeMove moves files out of the previous store. A crash while building leaves the
	// previous store incomplete until Recover moves the files back.
	ModeMove Mode = iota
	// ModeCopy copies files and leaves the previous store untouched until the swap.
	ModeCopy
)

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "move":
		return ModeMove, nil
	case "copy":
		return ModeCopy, nil
	default:
		return ModeMove, fmt.Errorf("unknown history mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeCopy {
		return "copy"
	}
	return "move"
}

// Library is the part of a library the builder writes to.
type Library interface {
	// Dir is the library directory holding the history store.
	Dir() string
	// GameDir is the root empty directory cleanup never leaves.
	GameDir() string
}

// record is one file of the history being built.
type record struct {
	path model.PatchFilePath
	typ  model.HistoryType
	// source is set for saved bytes that still live in the previous store.
	source string
}

// Builder collects the history of one apply and writes it as the new history store.
// Saved bytes are staged as soon as they are recorded, so a file may be overwritten
// right after AddReplacedFile returns.
type Builder struct {
	lib        Library
	mode       Mode
	stagingDir string
	records    map[model.PathKey]*record
	dirs       map[string]struct{}
}

// NewBuilder creates a builder with a fresh staging area inside lib.
func NewBuilder(lib Library, mode Mode) (*Builder, error) {
	stagingDir := filepath.Join(lib.Dir(), StagingDir)
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", stagingDir, err)
	}
	if err := fsutil.EnsureDir(stagingDir); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", stagingDir, err)
	}
	return &Builder{
		lib:        lib,
		mode:       mode,
		stagingDir: stagingDir,
		records:    make(map[model.PathKey]*record),
		dirs:       make(map[string]struct{}),
	}, nil
}

// AddAddedFile records a file that did not exist before any mod.
func (b *Builder) AddAddedFile(path model.PatchFilePath) {
	b.commit(&record{path: path, typ: model.HistoryAdded})
}

// AddReplacedFile records a file that existed and is about to be overwritten. res holds
// its original bytes.
func (b *Builder) AddReplacedFile(path model.PatchFilePath, res resource.Resource) error {
	rec, err := b.stage(path, model.HistoryReplaced, res)
	if err != nil {
		return err
	}
	b.commit(rec)
	return nil
}

// AddRemovedFile records a file that existed and is about to be deleted. res holds its
// original bytes.
func (b *Builder) AddRemovedFile(path model.PatchFilePath, res resource.Resource) error {
	rec, err := b.stage(path, model.HistoryRemoved, res)
	if err != nil {
		return err
	}
	b.commit(rec)
	return nil
}

// DeleteDirectoryIfEmpty marks dir for removal once the history is built.
func (b *Builder) DeleteDirectoryIfEmpty(dir string) {
	b.dirs[filepath.Clean(dir)] = struct{}{}
}

// Len returns the number of recorded files.
func (b *Builder) Len() int {
	return len(b.records)
}

func (b *Builder) commit(rec *record) {
	b.records[rec.path.Key()] = rec
}

// stage copies the original bytes into the staging area. Bytes that already live in
// the previous store are only referenced; Build moves or copies them.
func (b *Builder) stage(path model.PatchFilePath, typ model.HistoryType, res resource.Resource) (*record, error) {
	rec := &record{path: path, typ: typ}
	if hb, ok := res.(resource.HistoryBacked); ok {
		rec.source = hb.StorePath()
		return rec, nil
	}

	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	if err := fsutil.WriteFileAtomic(StorePath(b.stagingDir, path), rc, fsutil.FileModeDefault); err != nil {
		return nil, fmt.Errorf("failed to save original of %s: %w", path, err)
	}
	return rec, nil
}

// Begin starts a batch whose records only become part of the history on Commit.
func (b *Builder) Begin() *Batch {
	return &Batch{b: b}
}

// Batch groups records that must be committed together, such as the changes to one
// archive that only take effect once the archive is written.
type Batch struct {
	b       *Builder
	records []*record
}

// AddAddedFile records an added file in the batch.
func (t *Batch) AddAddedFile(path model.PatchFilePath) {
	t.records = append(t.records, &record{path: path, typ: model.HistoryAdded})
}

// AddReplacedFile records a replaced file in the batch.
func (t *Batch) AddReplacedFile(path model.PatchFilePath, res resource.Resource) error {
	rec, err := t.b.stage(path, model.HistoryReplaced, res)
	if err != nil {
		return err
	}
	t.records = append(t.records, rec)
	return nil
}

// AddRemovedFile records a removed file in the batch.
func (t *Batch) AddRemovedFile(path model.PatchFilePath, res resource.Resource) error {
	rec, err := t.b.stage(path, model.HistoryRemoved, res)
	if err != nil {
		return err
	}
	t.records = append(t.records, rec)
	return nil
}

// Len returns the number of records in the batch.
func (t *Batch) Len() int {
	return len(t.records)
}

// Commit adds the batch to the history.
func (t *Batch) Commit() {
	for _, rec := range t.records {
		t.b.commit(rec)
	}
	t.records = nil
}

// Discard drops the batch and its staged bytes.
func (t *Batch) Discard() {
	for _, rec := range t.records {
		if rec.typ != model.HistoryAdded && rec.source == "" {
			_ = os.Remove(StorePath(t.b.stagingDir, rec.path))
		}
	}
	t.records = nil
}

// Build writes the new history store and swaps it with the previous one. Afterwards it
// removes the directories marked by DeleteDirectoryIfEmpty that ended up empty.
func (b *Builder) Build() (*model.FileHistory, error) {
	keys := make([]model.PathKey, 0, len(b.records))
	for k := range b.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	h := &model.FileHistory{
		AddedFiles:    []model.PatchFilePath{},
		ReplacedFiles: []model.PatchFilePath{},
		RemovedFiles:  []model.PatchFilePath{},
	}
	for _, k := range keys {
		rec := b.records[k]
		if rec.source != "" {
			if !fsutil.IsFile(rec.source) {
				logger.Warn("Dropping history entry without saved content", logger.Fields{"path": rec.path.String()})
				continue
			}
			if err := b.transfer(rec); err != nil {
				return nil, err
			}
		}
		switch rec.typ {
		case model.HistoryAdded:
			h.AddedFiles = append(h.AddedFiles, rec.path)
		case model.HistoryReplaced:
			h.ReplacedFiles = append(h.ReplacedFiles, rec.path)
		case model.HistoryRemoved:
			h.RemovedFiles = append(h.RemovedFiles, rec.path)
		}
	}

	if err := writeManifest(b.stagingDir, h); err != nil {
		return nil, err
	}
	if err := b.swap(); err != nil {
		return nil, err
	}

	logger.Debug("History written", logger.Fields{
		"added":    len(h.AddedFiles),
		"replaced": len(h.ReplacedFiles),
		"removed":  len(h.RemovedFiles),
		"mode":     b.mode.String(),
	})

	b.cleanupDirs()
	return h, nil
}

// transfer brings bytes from the previous store into the staging area.
func (b *Builder) transfer(rec *record) error {
	dst := StorePath(b.stagingDir, rec.path)
	if b.mode == ModeCopy {
		if err := fsutil.Copy(rec.source, dst); err != nil {
			return fmt.Errorf("failed to copy history of %s: %w", rec.path, err)
		}
		return nil
	}
	if err := fsutil.Move(rec.source, dst); err != nil {
		return fmt.Errorf("failed to move history of %s: %w", rec.path, err)
	}
	return nil
}

// swap replaces the history store with the staging area. The previous store is kept as
// history.old until the new one is in place.
func (b *Builder) swap() error {
	storeDir := filepath.Join(b.lib.Dir(), StoreDir)
	swapDir := filepath.Join(b.lib.Dir(), SwapDir)

	if err := os.RemoveAll(swapDir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", swapDir, err)
	}
	hadStore := dirExists(storeDir)
	if hadStore {
		if err := os.Rename(storeDir, swapDir); err != nil {
			return fmt.Errorf("failed to swap out history: %w", err)
		}
	}
	if err := os.Rename(b.stagingDir, storeDir); err != nil {
		if hadStore {
			_ = os.Rename(swapDir, storeDir)
		}
		return fmt.Errorf("failed to swap in history: %w", err)
	}
	if err := os.RemoveAll(swapDir); err != nil {
		logger.Warn("Failed to remove previous history", logger.Fields{"path": swapDir, "error": err.Error()})
	}
	return nil
}

// cleanupDirs removes marked directories that are empty, deepest first.
func (b *Builder) cleanupDirs() {
	dirs := make([]string, 0, len(b.dirs))
	for d := range b.dirs {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, d := range dirs {
		for _, removed := range fsutil.RemoveEmptyDirsUpward(b.lib.GameDir(), d) {
			logger.Debug("Removed empty directory", logger.Fields{"path": removed})
		}
	}
}
