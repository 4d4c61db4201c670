// Package resource provides readable byte streams for logical files, independent of
// whether the bytes come from a mod payload, an archive entry or a history snapshot.
package resource

import (
	"bytes"
	"io"
	"io/fs"
	"os"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/model"
)

// Resource is the current content of one logical file.
type Resource interface {
	Path() model.PatchFilePath
	Open() (io.ReadCloser, error)
}

// HistoryBacked is implemented by resources that live in the previous history store.
// Such resources may be moved rather than copied when the new history is built.
type HistoryBacked interface {
	Resource
	// StorePath returns the on-disk file inside the history store.
	StorePath() string
}

// FileResource is backed by a regular file on disk.
type FileResource struct {
	path     model.PatchFilePath
	diskPath string
}

// NewFileResource creates a resource reading diskPath.
func NewFileResource(path model.PatchFilePath, diskPath string) *FileResource {
	return &FileResource{path: path, diskPath: diskPath}
}

// Path returns the logical path.
func (r *FileResource) Path() model.PatchFilePath { return r.path }

// DiskPath returns the backing file.
func (r *FileResource) DiskPath() string { return r.diskPath }

// Open opens the backing file.
func (r *FileResource) Open() (io.ReadCloser, error) {
	f, err := os.Open(r.diskPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewResourceNotFoundError(r.path.String(), err)
		}
		return nil, err
	}
	return f, nil
}

// HistoryResource is a file saved in the previous history store.
type HistoryResource struct {
	FileResource
}

// NewHistoryResource creates a resource backed by a history store file.
func NewHistoryResource(path model.PatchFilePath, storePath string) *HistoryResource {
	return &HistoryResource{FileResource: FileResource{path: path, diskPath: storePath}}
}

// StorePath returns the file inside the history store.
func (r *HistoryResource) StorePath() string { return r.diskPath }

// FSResource is an entry inside an fs.FS, typically an opened mod package.
type FSResource struct {
	path model.PatchFilePath
	fsys fs.FS
	name string
}

// NewFSResource creates a resource reading name from fsys.
func NewFSResource(path model.PatchFilePath, fsys fs.FS, name string) *FSResource {
	return &FSResource{path: path, fsys: fsys, name: name}
}

// Path returns the logical path.
func (r *FSResource) Path() model.PatchFilePath { return r.path }

// Open opens the entry.
func (r *FSResource) Open() (io.ReadCloser, error) {
	f, err := r.fsys.Open(r.name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewResourceNotFoundError(r.path.String(), err)
		}
		return nil, err
	}
	return f, nil
}

// BytesResource holds its content in memory.
type BytesResource struct {
	path model.PatchFilePath
	data []byte
}

// NewBytesResource creates an in-memory resource.
func NewBytesResource(path model.PatchFilePath, data []byte) *BytesResource {
	return &BytesResource{path: path, data: data}
}

// Path returns the logical path.
func (r *BytesResource) Path() model.PatchFilePath { return r.path }

// Open returns a reader over the held bytes.
func (r *BytesResource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.data)), nil
}

// ReadAll reads the whole content of res.
func ReadAll(res Resource) ([]byte, error) {
	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
