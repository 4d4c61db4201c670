package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/modpkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMod(t *testing.T, id, version string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), id)
	all := map[string]string{
		"metadata.json": fmt.Sprintf(`{"id":%q,"version":%q,"format_version":1,"games":[{"id":"rayman2"}]}`, id, version),
	}
	for k, v := range files {
		all[k] = v
	}
	for name, content := range all {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func openLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Open(t.TempDir(), Options{GameID: "rayman2"})
	require.NoError(t, err)
	return lib
}

func ids(entries []*model.ModManifestEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestOpen_CreatesLayout(t *testing.T) {
	game := t.TempDir()
	lib, err := Open(game, Options{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(game, ".modpatch"), lib.Dir())
	assert.DirExists(t, filepath.Join(lib.Dir(), ModsDir))
	assert.Empty(t, lib.Mods())

	_, err = Open(filepath.Join(game, "missing"), Options{})
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestOpen_BadManifest(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "corrupt", content: "{", wantErr: errors.ErrLibraryCorrupt},
		{name: "newer", content: `{"format_version": 99, "mods": []}`, wantErr: errors.ErrUnsupportedManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := t.TempDir()
			dir := filepath.Join(game, DefaultDirName)
			require.NoError(t, os.MkdirAll(dir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(tt.content), 0o644))

			_, err := Open(game, Options{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestInstallMod(t *testing.T) {
	ctx := context.Background()
	lib := openLibrary(t)

	m, err := lib.InstallMod(ctx, writeMod(t, "low", "1.0.0", map[string]string{"files/default/a.txt": "low"}))
	require.NoError(t, err)
	assert.Equal(t, "low", m.ID())
	_, err = lib.InstallMod(ctx, writeMod(t, "high", "2.0.0", nil))
	require.NoError(t, err)

	mods := lib.Mods()
	assert.Equal(t, []string{"high", "low"}, ids(mods))
	assert.True(t, mods[1].Enabled)
	assert.Equal(t, "1.0.0", mods[1].Install.ModVersion)
	assert.Positive(t, mods[1].Install.Size)
	assert.FileExists(t, filepath.Join(lib.ModDir("low"), "files", "default", "a.txt"))

	// reinstalling keeps the position and state
	require.NoError(t, lib.SetEnabled("low", false))
	_, err = lib.InstallMod(ctx, writeMod(t, "low", "1.1.0", nil))
	require.NoError(t, err)
	mods = lib.Mods()
	assert.Equal(t, []string{"high", "low"}, ids(mods))
	assert.False(t, mods[1].Enabled)
	assert.Equal(t, "1.1.0", mods[1].Install.ModVersion)
	assert.NoFileExists(t, filepath.Join(lib.ModDir("low"), "files", "default", "a.txt"))

	// state survives reopening
	reopened, err := Open(lib.GameDir(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ids(mods), ids(reopened.Mods()))
}

func TestInstallMod_FromPackage(t *testing.T) {
	ctx := context.Background()
	lib := openLibrary(t)
	pkgPath := filepath.Join(t.TempDir(), "pkg.zip")
	require.NoError(t, modpkg.Pack(ctx, writeMod(t, "zipped", "1.0", map[string]string{"files/default/b.txt": "b"}), pkgPath))

	_, err := lib.InstallMod(ctx, pkgPath)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(lib.ModDir("zipped"), "files", "default", "b.txt"))
	assert.Equal(t, pkgPath, lib.Mods()[0].Install.Source)
}

func TestInstallMod_Rejected(t *testing.T) {
	ctx := context.Background()

	lib, err := Open(t.TempDir(), Options{GameID: "rayman3"})
	require.NoError(t, err)
	_, err = lib.InstallMod(ctx, writeMod(t, "r2only", "1.0", nil))
	assert.ErrorIs(t, err, errors.ErrGameNotSupported)

	dir := writeMod(t, "bad", "1.0", nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(`{"id":"bad","version":"1.0","format_version":5}`), 0o644))
	_, err = lib.InstallMod(ctx, dir)
	assert.ErrorIs(t, err, errors.ErrUnsupportedModFormat)

	assert.Empty(t, lib.Mods())
	entries, err := os.ReadDir(filepath.Join(lib.Dir(), ModsDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUninstallMod(t *testing.T) {
	ctx := context.Background()
	lib := openLibrary(t)
	_, err := lib.InstallMod(ctx, writeMod(t, "gone", "1.0", nil))
	require.NoError(t, err)

	require.NoError(t, lib.UninstallMod("GONE"))
	assert.Empty(t, lib.Mods())
	assert.NoDirExists(t, lib.ModDir("gone"))
	assert.ErrorIs(t, lib.UninstallMod("gone"), errors.ErrModNotFound)
}

func TestSetVariant(t *testing.T) {
	ctx := context.Background()
	lib := openLibrary(t)
	_, err := lib.InstallMod(ctx, writeMod(t, "tex", "1.0", map[string]string{
		"files/default/a.txt": "default",
		"files/hd/a.txt":      "hd",
	}))
	require.NoError(t, err)

	require.NoError(t, lib.SetVariant("tex", "hd"))
	entry, err := lib.Entry("tex")
	require.NoError(t, err)
	assert.Equal(t, "hd", entry.SelectedVariant())

	assert.ErrorIs(t, lib.SetVariant("tex", "4k"), errors.ErrVariantNotFound)
	assert.ErrorIs(t, lib.SetVariant("other", "hd"), errors.ErrModNotFound)

	require.NoError(t, lib.SetVariant("tex", "default"))
	entry, err = lib.Entry("tex")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultVariant, entry.SelectedVariant())
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	lib := openLibrary(t)
	for _, id := range []string{"c", "b", "a"} {
		_, err := lib.InstallMod(ctx, writeMod(t, id, "1.0", nil))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a", "b", "c"}, ids(lib.Mods()))

	tests := []struct {
		id    string
		index int
		want  []string
	}{
		{id: "a", index: 2, want: []string{"b", "c", "a"}},
		{id: "a", index: 0, want: []string{"a", "b", "c"}},
		{id: "c", index: -5, want: []string{"c", "a", "b"}},
		{id: "c", index: 99, want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		require.NoError(t, lib.Move(tt.id, tt.index))
		assert.Equal(t, tt.want, ids(lib.Mods()))
	}
	assert.ErrorIs(t, lib.Move("z", 0), errors.ErrModNotFound)
}

func TestLoadEnabledMods(t *testing.T) {
	ctx := context.Background()
	lib := openLibrary(t)
	for _, id := range []string{"c", "b", "a"} {
		_, err := lib.InstallMod(ctx, writeMod(t, id, "1.0", map[string]string{"files/default/" + id + ".txt": id}))
		require.NoError(t, err)
	}
	require.NoError(t, lib.SetEnabled("b", false))

	loaded, err := lib.LoadEnabledMods(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].Mod.ID())
	assert.Equal(t, "c", loaded[1].Mod.ID())
	require.Len(t, loaded[1].AddedFiles, 1)
	assert.Equal(t, model.PhysicalPath("c.txt"), loaded[1].AddedFiles[0].Path())

	require.NoError(t, os.RemoveAll(lib.ModDir("c")))
	_, err = lib.LoadEnabledMods(ctx)
	assert.ErrorIs(t, err, errors.ErrModNotFound)
}

func TestReadHistory_Empty(t *testing.T) {
	lib := openLibrary(t)
	snap, err := lib.ReadHistory()
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}
