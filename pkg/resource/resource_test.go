package resource

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileResource(t *testing.T) {
	dir := t.TempDir()
	disk := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(disk, []byte("png"), 0o644))

	res := NewFileResource(model.PhysicalPath("textures/a.png"), disk)
	data, err := ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "textures/a.png", res.Path().FullFilePath())
}

func TestFileResource_Missing(t *testing.T) {
	res := NewFileResource(model.PhysicalPath("missing.txt"), filepath.Join(t.TempDir(), "missing.txt"))
	_, err := res.Open()
	assert.ErrorIs(t, err, errors.ErrResourceNotFound)
}

func TestHistoryResource(t *testing.T) {
	disk := filepath.Join(t.TempDir(), "saved")
	require.NoError(t, os.WriteFile(disk, []byte("orig"), 0o644))

	var res Resource = NewHistoryResource(model.PhysicalPath("a.txt"), disk)
	hb, ok := res.(HistoryBacked)
	require.True(t, ok)
	assert.Equal(t, disk, hb.StorePath())

	_, isHistory := Resource(NewFileResource(model.PhysicalPath("a.txt"), disk)).(HistoryBacked)
	assert.False(t, isHistory)
}

func TestFSResource(t *testing.T) {
	fsys := fstest.MapFS{"files/default/a.txt": {Data: []byte("from fs")}}

	data, err := ReadAll(NewFSResource(model.PhysicalPath("a.txt"), fsys, "files/default/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from fs", string(data))

	_, err = NewFSResource(model.PhysicalPath("b.txt"), fsys, "files/default/b.txt").Open()
	assert.ErrorIs(t, err, errors.ErrResourceNotFound)
}

func TestBytesResource(t *testing.T) {
	data, err := ReadAll(NewBytesResource(model.PhysicalPath("a"), []byte("bytes")))
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
}
