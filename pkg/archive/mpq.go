package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	mpq "github.com/suprsokr/go-mpq"
)

// MPQManagerID is the location ID of MPQ archives.
const MPQManagerID = "mpq"

// mpqTableSlack is the number of extra hash table slots reserved when repacking.
const mpqTableSlack = 16

// MPQManager handles Blizzard MPQ archives through go-mpq.
type MPQManager struct{}

// NewMPQManager creates a new MPQManager.
func NewMPQManager() *MPQManager {
	return &MPQManager{}
}

// ID returns MPQManagerID.
func (m *MPQManager) ID() string {
	return MPQManagerID
}

// Load opens the MPQ archive at archivePath.
func (m *MPQManager) Load(_ context.Context, archivePath string) (Archive, error) {
	reader, err := mpq.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open mpq archive %s: %w", archivePath, err)
	}

	listed, err := reader.ListFiles()
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to list files of %s: %w", archivePath, err)
	}
	names := make([]string, 0, len(listed))
	for _, name := range listed {
		if isMPQInternalFile(name) {
			continue
		}
		names = append(names, name)
	}

	a := &mpqArchive{path: archivePath, reader: reader}
	a.stagingArea, err = newStagingArea("modpatch-mpq-*", names, `\`, a.extract)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	return a, nil
}

// OnRepackedArchives has nothing to batch for MPQ archives.
func (m *MPQManager) OnRepackedArchives(_ context.Context, archivePaths []string) error {
	logger.Debug("MPQ archives repacked", logger.Fields{"count": len(archivePaths)})
	return nil
}

// isMPQInternalFile reports whether name is one of the special files go-mpq regenerates
// on write, such as "(listfile)" and "(attributes)".
func isMPQInternalFile(name string) bool {
	return strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")")
}

type mpqArchive struct {
	*stagingArea
	path   string
	reader *mpq.Archive
}

// extract copies one entry of the original archive to a staging file and opens it.
func (a *mpqArchive) extract(name string) (io.ReadCloser, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("mpq archive %s is closed", a.path)
	}
	dest := a.stagePath()
	if err := os.MkdirAll(filepath.Dir(dest), fsutil.DirModeDefault); err != nil {
		return nil, err
	}
	if err := a.reader.ExtractFile(name, dest); err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", name, err)
	}
	return os.Open(dest)
}

// Write rebuilds the archive. go-mpq writes to a temporary file next to the path it is
// given and renames it on Close. The archive is built in a private directory beside the
// target and renamed over it once complete, so a failure leaves the original intact and
// no temporary files behind.
func (a *mpqArchive) Write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := a.sorted()
	for _, e := range entries {
		if e.staged == "" {
			if err := a.stageOriginal(e); err != nil {
				return err
			}
		}
	}
	if err := a.closeReader(); err != nil {
		return err
	}

	buildDir, err := os.MkdirTemp(filepath.Dir(a.path), ".modpatch-mpq-*")
	if err != nil {
		return fmt.Errorf("failed to create build directory for %s: %w", a.path, err)
	}
	defer func() {
		if err := os.RemoveAll(buildDir); err != nil {
			logger.Warn("Failed to remove MPQ build directory", logger.Fields{"path": buildDir, "error": err.Error()})
		}
	}()

	built := filepath.Join(buildDir, filepath.Base(a.path))
	writer, err := mpq.Create(built, len(entries)+mpqTableSlack)
	if err != nil {
		return fmt.Errorf("failed to create mpq archive %s: %w", a.path, err)
	}
	for _, e := range entries {
		if err := writer.AddFile(e.staged, e.name); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", e.name, a.path, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to write mpq archive %s: %w", a.path, err)
	}
	if err := os.Rename(built, a.path); err != nil {
		return fmt.Errorf("failed to replace mpq archive %s: %w", a.path, err)
	}

	logger.Debug("Repacked MPQ archive", logger.Fields{"path": a.path, "files": len(entries)})
	return nil
}

func (a *mpqArchive) closeReader() error {
	if a.reader == nil {
		return nil
	}
	err := a.reader.Close()
	a.reader = nil
	return err
}

// Close releases the reader and the staging files.
func (a *mpqArchive) Close() error {
	err := a.closeReader()
	if cerr := a.cleanup(); err == nil {
		err = cerr
	}
	return err
}
