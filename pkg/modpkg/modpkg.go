// Package modpkg extracts mod packages into directories and packs mod directories into
// distributable archives.
package modpkg

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/mholt/archives"
)

// Package is an opened mod package. It reads entries without extracting them.
type Package struct {
	path string
	fsys fs.FS
}

// Open opens the mod package at packagePath. Directories are accepted as well, so an
// unpacked mod can be handled like a packaged one.
func Open(ctx context.Context, packagePath string) (*Package, error) {
	fsys, err := archives.FileSystem(ctx, packagePath, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidModFormat, "failed to open mod package %s: %v", packagePath, err)
	}
	return &Package{path: packagePath, fsys: fsys}, nil
}

// FS returns the package contents.
func (p *Package) FS() fs.FS {
	return p.fsys
}

// Path returns the package location on disk.
func (p *Package) Path() string {
	return p.path
}

// Close releases the package.
func (p *Package) Close() error {
	if closer, ok := p.fsys.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ExtractTo writes all regular files of the package below destDir.
func (p *Package) ExtractTo(ctx context.Context, destDir string) error {
	if err := fsutil.EnsureDir(destDir); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	return fs.WalkDir(p.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return extractEntry(p.fsys, path, destDir, d)
	})
}

// Extract unpacks the mod package at packagePath into destDir.
func Extract(ctx context.Context, packagePath, destDir string) error {
	pkg, err := Open(ctx, packagePath)
	if err != nil {
		return err
	}
	defer func() { _ = pkg.Close() }()
	return pkg.ExtractTo(ctx, destDir)
}

// extractEntry writes a single package entry below destDir.
func extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	if path == "." {
		return nil
	}

	targetPath := filepath.Join(destDir, filepath.FromSlash(path))
	if !fsutil.IsWithin(destDir, targetPath) {
		return errors.Wrapf(errors.ErrInvalidModFormat, "package entry %s escapes the destination", path)
	}

	if d.IsDir() {
		return os.MkdirAll(targetPath, fsutil.DirModeDefault)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info for %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		logger.Debug("Skipping non-regular package entry", logger.Fields{"entry": path, "mode": info.Mode().String()})
		return nil
	}
	return writeRegularFile(fsys, path, targetPath, info)
}

// writeRegularFile copies the entry at path to targetPath and preserves its modification time.
func writeRegularFile(fsys fs.FS, path, targetPath string, info fs.FileInfo) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = srcFile.Close() }()

	perm := info.Mode().Perm()
	if perm == 0 {
		perm = fsutil.FileModeDefault
	}
	if err := fsutil.WriteFileAtomic(targetPath, srcFile, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", targetPath, err)
	}
	if err := os.Chtimes(targetPath, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set modification time for %s: %w", targetPath, err)
	}
	return nil
}

// Pack creates a mod package at packagePath from the contents of sourceDir. The format
// follows the extension: .zip, .tar.gz or .tgz.
func Pack(ctx context.Context, sourceDir, packagePath string) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}

	format, err := formatFor(packagePath)
	if err != nil {
		return err
	}

	packageFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	if err := fsutil.EnsureFileDir(packagePath); err != nil {
		return err
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(format.Archive(ctx, pw, packageFiles))
	}()
	if err := fsutil.WriteFileAtomic(packagePath, pr, fsutil.FileModeDefault); err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("failed to create mod package %s: %w", packagePath, err)
	}

	logger.Debug("Packed mod package", logger.Fields{"source": sourceDir, "package": packagePath, "files": len(packageFiles)})
	return nil
}

func formatFor(packagePath string) (archives.Archiver, error) {
	name := strings.ToLower(packagePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return archives.Zip{}, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return archives.CompressedArchive{
			Compression: archives.Gz{},
			Archival:    archives.Tar{},
		}, nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedModFormat, "cannot pack %s: use .zip or .tar.gz", packagePath)
	}
}
