package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/mholt/archives"
)

// ZipManagerID is the location ID of zip archives (including renamed variants such as .pk3).
const ZipManagerID = "zip"

// ZipManager handles zip archives through mholt/archives.
type ZipManager struct{}

// NewZipManager creates a new ZipManager.
func NewZipManager() *ZipManager {
	return &ZipManager{}
}

// ID returns ZipManagerID.
func (m *ZipManager) ID() string {
	return ZipManagerID
}

// Load opens the zip archive at archivePath.
func (m *ZipManager) Load(ctx context.Context, archivePath string) (Archive, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive %s: %w", archivePath, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat zip archive %s: %w", archivePath, err)
	}

	// The extension does not have to be .zip, so the format is fixed instead of identified.
	fsys := &archives.ArchiveFS{Stream: io.NewSectionReader(file, 0, info.Size()), Format: archives.Zip{}, Context: ctx}

	var names []string
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to list files of %s: %w", archivePath, err)
	}

	a := &zipArchive{path: archivePath, file: file, fsys: fsys}
	a.stagingArea, err = newStagingArea("modpatch-zip-*", names, "/", a.readEntry)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return a, nil
}

// OnRepackedArchives has nothing to batch for zip archives.
func (m *ZipManager) OnRepackedArchives(_ context.Context, archivePaths []string) error {
	logger.Debug("Zip archives repacked", logger.Fields{"count": len(archivePaths)})
	return nil
}

type zipArchive struct {
	*stagingArea
	path string
	file *os.File
	fsys fs.FS
}

func (a *zipArchive) readEntry(name string) (io.ReadCloser, error) {
	if a.fsys == nil {
		return nil, fmt.Errorf("zip archive %s is closed", a.path)
	}
	return a.fsys.Open(name)
}

// Write rebuilds the archive into a temporary file and renames it over the original.
func (a *zipArchive) Write(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Once the repack starts it is not interrupted.
	ctx = context.WithoutCancel(ctx)

	entries := a.sorted()
	files := make([]archives.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.staged == "" {
			if err := a.stageOriginal(e); err != nil {
				return err
			}
		}
		info, err := os.Stat(e.staged)
		if err != nil {
			return fmt.Errorf("failed to stat staged entry %s: %w", e.name, err)
		}
		staged := e.staged
		files = append(files, archives.FileInfo{
			FileInfo:      info,
			NameInArchive: e.name,
			Open: func() (fs.File, error) {
				return os.Open(staged)
			},
		})
	}
	if err := a.closeFile(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".modpatch-zip-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = (archives.Zip{}).Archive(ctx, tmp, files); err != nil {
		return fmt.Errorf("failed to write zip archive %s: %w", a.path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync zip archive %s: %w", a.path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close zip archive %s: %w", a.path, err)
	}
	if err = os.Chmod(tmpPath, fsutil.FileModeDefault); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, a.path); err != nil {
		return fmt.Errorf("failed to replace zip archive %s: %w", a.path, err)
	}

	logger.Debug("Repacked zip archive", logger.Fields{"path": a.path, "files": len(entries)})
	return nil
}

func (a *zipArchive) closeFile() error {
	a.fsys = nil
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Close releases the archive file and the staging files.
func (a *zipArchive) Close() error {
	err := a.closeFile()
	if cerr := a.cleanup(); err == nil {
		err = cerr
	}
	return err
}
