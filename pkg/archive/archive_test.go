package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/mholt/archives"
	mpq "github.com/suprsokr/go-mpq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func createZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	src := t.TempDir()
	writeTree(t, src, files)

	ctx := context.Background()
	infos, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		src + string(os.PathSeparator): "",
	})
	require.NoError(t, err)

	out, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()
	require.NoError(t, archives.Zip{}.Archive(ctx, out, infos))
}

func createMPQ(t *testing.T, path string, files map[string]string) {
	t.Helper()
	src := t.TempDir()
	w, err := mpq.Create(path, len(files)+4)
	require.NoError(t, err)
	i := 0
	for name, content := range files {
		i++
		p := filepath.Join(src, "f"+string(rune('a'+i)))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		require.NoError(t, w.AddFile(p, name))
	}
	require.NoError(t, w.Close())
}

func readEntry(t *testing.T, a Archive, name string) string {
	t.Helper()
	rc, err := a.Open(name)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestZipManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.pk3")
	createZip(t, path, map[string]string{
		"textures/wall.txt": "wall",
		"sounds/hit.txt":    "hit",
		"readme.txt":        "readme",
	})

	m := NewZipManager()
	a, err := m.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.txt", "sounds/hit.txt", "textures/wall.txt"}, a.Files())
	assert.Equal(t, "wall", readEntry(t, a, "Textures/Wall.txt"))

	require.NoError(t, a.Put("TEXTURES/wall.txt", stringReader("new wall")))
	require.NoError(t, a.Put("maps/level1.txt", stringReader("level")))
	require.NoError(t, a.Remove("readme.txt"))
	assert.Equal(t, "new wall", readEntry(t, a, "textures/wall.txt"))

	require.NoError(t, a.Write(ctx))
	require.NoError(t, a.Close())

	reloaded, err := m.Load(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reloaded.Close() }()

	assert.Equal(t, []string{"maps/level1.txt", "sounds/hit.txt", "textures/wall.txt"}, reloaded.Files())
	assert.Equal(t, "new wall", readEntry(t, reloaded, "textures/wall.txt"))
	assert.Equal(t, "level", readEntry(t, reloaded, "maps/level1.txt"))
	assert.Equal(t, "hit", readEntry(t, reloaded, "sounds/hit.txt"))
}

func TestZipManager_WriteCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.zip")
	createZip(t, path, map[string]string{"a.txt": "a"})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	a, err := NewZipManager().Load(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	require.NoError(t, a.Remove("a.txt"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Write(ctx), context.Canceled)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestZipManager_LoadMissing(t *testing.T) {
	_, err := NewZipManager().Load(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}

func TestMPQManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patch.mpq")
	createMPQ(t, path, map[string]string{
		`Interface\Icons\Sword.blp`: "sword",
		`DBFilesClient\Spell.dbc`:   "spell",
	})

	m := NewMPQManager()
	a, err := m.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{`DBFilesClient\Spell.dbc`, `Interface\Icons\Sword.blp`}, a.Files())
	assert.Equal(t, "sword", readEntry(t, a, "interface/icons/sword.blp"))

	require.NoError(t, a.Put("interface/icons/sword.blp", stringReader("better sword")))
	require.NoError(t, a.Put("Sound/Music/Theme.mp3", stringReader("theme")))
	require.NoError(t, a.Remove(`DBFilesClient\Spell.dbc`))
	assert.Contains(t, a.Files(), `Sound\Music\Theme.mp3`)

	require.NoError(t, a.Write(ctx))
	require.NoError(t, a.Close())

	reader, err := mpq.Open(path)
	require.NoError(t, err)
	assert.True(t, reader.HasFile(`Interface\Icons\Sword.blp`))
	assert.True(t, reader.HasFile(`Sound\Music\Theme.mp3`))
	assert.False(t, reader.HasFile(`DBFilesClient\Spell.dbc`))
	require.NoError(t, reader.Close())

	reloaded, err := m.Load(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reloaded.Close() }()
	assert.Equal(t, "better sword", readEntry(t, reloaded, `Interface\Icons\Sword.blp`))
	assert.Equal(t, "theme", readEntry(t, reloaded, `Sound\Music\Theme.mp3`))
}

func TestMPQManager_FailedWriteKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "patch.mpq")
	createMPQ(t, path, map[string]string{`Data.txt`: "a"})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	a, err := NewMPQManager().Load(ctx, path)
	require.NoError(t, err)
	require.NoError(t, a.Put("Data/b.txt", stringReader("b")))

	staged := a.(*mpqArchive).entries[model.NormalizePath("Data/b.txt")].staged
	require.NotEmpty(t, staged)
	require.NoError(t, os.Remove(staged))

	assert.Error(t, a.Write(ctx))
	require.NoError(t, a.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "patch.mpq", left[0].Name())
}

func TestStagingArea_RemoveMissing(t *testing.T) {
	s, err := newStagingArea("modpatch-test-*", []string{"a.txt"}, "/", func(string) (io.ReadCloser, error) {
		return io.NopCloser(stringReader("")), nil
	})
	require.NoError(t, err)
	defer func() { _ = s.cleanup() }()

	err = s.Remove("b.txt")
	assert.ErrorIs(t, err, errors.ErrResourceNotFound)

	err = s.Put("", stringReader("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidPath)

	_, err = s.Open("b.txt")
	assert.ErrorIs(t, err, errors.ErrResourceNotFound)
}

func TestRegistry(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
		want    []string
		wantErr bool
	}{
		{name: "all by default", want: []string{"mpq", "zip"}},
		{name: "subset", enabled: []string{"ZIP"}, want: []string{"zip"}},
		{name: "unknown", enabled: []string{"rar"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDefaultRegistry(tt.enabled)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.IDs())
		})
	}

	r := NewRegistry(NewZipManager())
	m, ok := r.Get("Zip")
	require.True(t, ok)
	assert.Equal(t, ZipManagerID, m.ID())
	_, ok = r.Get("mpq")
	assert.False(t, ok)
}
