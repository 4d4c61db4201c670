package mod

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(s string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(s)}
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"metadata.json": file(`{
			"id": "better-textures",
			"version": "1.2.0",
			"format_version": 1,
			"name": "Better Textures",
			"games": [{"id": "rayman2", "versions": ">= 1.0, < 2.0"}],
			"hooks": {"post_apply": "hooks/post.tengo"}
		}`),
		"file_table.json": file(`{
			"removed_files": [{"file_path": "Data\\old.cfg"}],
			"archives": [
				{"location": "Data/Textures.cnt", "location_id": "MPQ"},
				{"location": "Data", "location_id": "zip"}
			]
		}`),
		"files/default/textures/a.png":             file("default a"),
		"files/default/textures/b.png":             file("default b"),
		"files/default/data/textures.cnt/wall.bmp": file("wall"),
		"files/default/Data/sound.wav":             file("sound"),
		"files/hd/textures/a.png":                  file("hd a"),
		"hooks/post.tengo":                         file(`x := 1`),
	}
}

func paths(t *testing.T, res []resource.Resource) map[string]string {
	t.Helper()
	out := make(map[string]string, len(res))
	for _, r := range res {
		data, err := resource.ReadAll(r)
		require.NoError(t, err)
		out[r.Path().String()] = string(data)
	}
	return out
}

func TestLoad(t *testing.T) {
	m, err := Load(testFS())
	require.NoError(t, err)

	assert.Equal(t, "better-textures", m.ID())
	assert.Equal(t, "1.2.0", m.Version().String())
	assert.Equal(t, "Better Textures", m.Metadata.DisplayName())
	assert.Equal(t, []string{"default", "hd"}, m.Variants())
	assert.Equal(t, []model.PatchFilePath{model.PhysicalPath("Data/old.cfg")}, m.RemovedFiles())
	assert.Equal(t, "mpq", m.Archives()[0].LocationID)
}

func TestAddedFiles(t *testing.T) {
	m, err := Load(testFS())
	require.NoError(t, err)

	tests := []struct {
		name    string
		variant string
		want    map[string]string
	}{
		{
			name:    "default",
			variant: "default",
			want: map[string]string{
				"textures/a.png":                  "default a",
				"textures/b.png":                  "default b",
				"Data/Textures.cnt[mpq]/wall.bmp": "wall",
				"Data[zip]/sound.wav":             "sound",
			},
		},
		{
			name:    "variant overrides default",
			variant: "HD",
			want: map[string]string{
				"textures/a.png":                  "hd a",
				"textures/b.png":                  "default b",
				"Data/Textures.cnt[mpq]/wall.bmp": "wall",
				"Data[zip]/sound.wav":             "sound",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.AddedFiles(tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(t, res))
		})
	}

	_, err = m.AddedFiles("missing")
	assert.ErrorIs(t, err, errors.ErrVariantNotFound)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr error
	}{
		{
			name:    "missing metadata",
			fsys:    fstest.MapFS{"files/default/a.txt": file("a")},
			wantErr: errors.ErrInvalidModFormat,
		},
		{
			name:    "broken json",
			fsys:    fstest.MapFS{"metadata.json": file(`{"id":`)},
			wantErr: errors.ErrInvalidModFormat,
		},
		{
			name:    "bad id",
			fsys:    fstest.MapFS{"metadata.json": file(`{"id":"a b","version":"1.0"}`)},
			wantErr: errors.ErrInvalidModFormat,
		},
		{
			name:    "bad version",
			fsys:    fstest.MapFS{"metadata.json": file(`{"id":"a","version":"one"}`)},
			wantErr: errors.ErrInvalidModFormat,
		},
		{
			name:    "newer format",
			fsys:    fstest.MapFS{"metadata.json": file(`{"id":"a","version":"1.0","format_version":2}`)},
			wantErr: errors.ErrUnsupportedModFormat,
		},
		{
			name: "escaping removed file",
			fsys: fstest.MapFS{
				"metadata.json":   file(`{"id":"a","version":"1.0"}`),
				"file_table.json": file(`{"removed_files":[{"file_path":"../outside.txt"}]}`),
			},
			wantErr: errors.ErrInvalidModFormat,
		},
		{
			name: "archive without id",
			fsys: fstest.MapFS{
				"metadata.json":   file(`{"id":"a","version":"1.0"}`),
				"file_table.json": file(`{"archives":[{"location":"data.mpq"}]}`),
			},
			wantErr: errors.ErrInvalidModFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.fsys)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSupportsGame(t *testing.T) {
	m, err := Load(testFS())
	require.NoError(t, err)

	assert.True(t, m.SupportsGame("Rayman2", "1.5"))
	assert.True(t, m.SupportsGame("rayman2", ""))
	assert.True(t, m.SupportsGame("", ""))
	assert.False(t, m.SupportsGame("rayman2", "2.1"))
	assert.False(t, m.SupportsGame("rayman3", "1.0"))
}

func TestHookScript(t *testing.T) {
	m, err := Load(testFS())
	require.NoError(t, err)

	src, ok, err := m.HookScript(HookPostApply)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x := 1", string(src))

	_, ok, err = m.HookScript("pre_apply")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify(t *testing.T) {
	fsys := testFS()
	sum := fmt.Sprintf("%x", sha256.Sum256([]byte("default a")))
	fsys["metadata.json"] = file(fmt.Sprintf(`{"id":"a","version":"1.0","hashes":{"files/default/textures/a.png":%q}}`, sum))

	m, err := Load(fsys)
	require.NoError(t, err)
	require.NoError(t, m.Verify())

	fsys["files/default/textures/a.png"] = file("tampered")
	assert.ErrorIs(t, m.Verify(), errors.ErrModChecksum)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`{"id":"dir-mod","version":"0.1"}`), 0o644))

	m, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "dir-mod", m.ID())
	assert.Empty(t, m.Variants())

	files, err := m.AddedFiles(model.DefaultVariant)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, errors.ErrModNotFound)
}
