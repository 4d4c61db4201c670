// Package history records what an apply did to every file it touched and maintains the
// on-disk history store that makes the apply reversible.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/resource"
)

// Layout of the history store inside the library directory.
const (
	StoreDir     = "history"
	StagingDir   = "history.tmp"
	SwapDir      = "history.old"
	ManifestFile = "history.json"
	filesDir     = "files"
	rootDir      = "root"
	archivesDir  = "archives"
)

// Entry is one file of a history snapshot. Resource holds the saved original bytes and
// is nil for added files.
type Entry struct {
	Path     model.PatchFilePath
	Type     model.HistoryType
	Resource resource.Resource
}

// Snapshot is a history read from the store.
type Snapshot struct {
	History *model.FileHistory
	Entries []Entry
}

// IsEmpty reports whether the snapshot records no change.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Entries) == 0
}

// StorePath returns where the saved bytes of p live below storeDir.
func StorePath(storeDir string, p model.PatchFilePath) string {
	if p.IsArchived() {
		return filepath.Join(storeDir, filesDir, archivesDir, filepath.FromSlash(p.Location), filepath.FromSlash(p.FilePath))
	}
	return filepath.Join(storeDir, filesDir, rootDir, filepath.FromSlash(p.FilePath))
}

// Read loads the history snapshot of the library at libraryDir. A library without a
// history yields an empty snapshot.
func Read(libraryDir string) (*Snapshot, error) {
	storeDir := filepath.Join(libraryDir, StoreDir)
	data, err := os.ReadFile(filepath.Join(storeDir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{History: &model.FileHistory{}}, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	h := &model.FileHistory{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, errors.Wrapf(errors.ErrLibraryCorrupt, "failed to parse %s: %v", ManifestFile, err)
	}

	snap := &Snapshot{History: h, Entries: make([]Entry, 0, h.Len())}
	for _, p := range h.AddedFiles {
		snap.Entries = append(snap.Entries, Entry{Path: p, Type: model.HistoryAdded})
	}
	saved := func(paths []model.PatchFilePath, typ model.HistoryType) {
		for _, p := range paths {
			storePath := StorePath(storeDir, p)
			if !fsutil.IsFile(storePath) {
				logger.Warn("History entry has no saved content", logger.Fields{"path": p.String(), "type": typ.String()})
			}
			snap.Entries = append(snap.Entries, Entry{Path: p, Type: typ, Resource: resource.NewHistoryResource(p, storePath)})
		}
	}
	saved(h.ReplacedFiles, model.HistoryReplaced)
	saved(h.RemovedFiles, model.HistoryRemoved)

	for _, e := range snap.Entries {
		if err := e.Path.Validate(); err != nil {
			return nil, errors.Wrapf(errors.ErrLibraryCorrupt, "history entry %s: %v", e.Path, err)
		}
	}
	return snap, nil
}

// writeManifest writes history.json into storeDir.
func writeManifest(storeDir string, h *model.FileHistory) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(storeDir, ManifestFile), bytes.NewReader(data), fsutil.FileModeDefault)
}

// Recover repairs the history store after an interrupted build. A complete staging
// store is promoted, a swapped-out store is restored, and files that an unfinished
// build moved out of the current store are moved back.
func Recover(libraryDir string) error {
	storeDir := filepath.Join(libraryDir, StoreDir)
	stagingDir := filepath.Join(libraryDir, StagingDir)
	swapDir := filepath.Join(libraryDir, SwapDir)

	storeExists, err := fsutil.Exists(storeDir)
	if err != nil {
		return err
	}
	if !storeExists {
		switch {
		case fsutil.IsFile(filepath.Join(stagingDir, ManifestFile)):
			logger.Warn("Promoting completed history build after interruption", logger.Fields{"library": libraryDir})
			if err := os.Rename(stagingDir, storeDir); err != nil {
				return fmt.Errorf("failed to promote staged history: %w", err)
			}
		case dirExists(swapDir):
			logger.Warn("Restoring previous history after interruption", logger.Fields{"library": libraryDir})
			if err := os.Rename(swapDir, storeDir); err != nil {
				return fmt.Errorf("failed to restore previous history: %w", err)
			}
		}
	}

	if dirExists(stagingDir) && dirExists(storeDir) {
		if err := restoreMoved(stagingDir, storeDir); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", stagingDir, err)
	}
	if err := os.RemoveAll(swapDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", swapDir, err)
	}
	return nil
}

// restoreMoved moves staged files back into storeDir where storeDir lacks them.
func restoreMoved(stagingDir, storeDir string) error {
	moved := 0
	err := filepath.WalkDir(filepath.Join(stagingDir, filesDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(storeDir, rel)
		if fsutil.IsFile(target) {
			return nil
		}
		if err := fsutil.Move(path, target); err != nil {
			return err
		}
		moved++
		return nil
	})
	if moved > 0 {
		logger.Warn("Moved history files back after interrupted build", logger.Fields{"count": moved})
	}
	return err
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
