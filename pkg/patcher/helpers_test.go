package patcher

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"testing/fstest"

	"github.com/glorpus-work/modpatch/pkg/archive"
	"github.com/glorpus-work/modpatch/pkg/history"
	"github.com/glorpus-work/modpatch/pkg/library"
	"github.com/glorpus-work/modpatch/pkg/mod"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/mholt/archives"
	"github.com/stretchr/testify/require"
)

// testMod describes a mod written to disk for a test.
type testMod struct {
	id      string
	version string
	// files maps paths below files/ (variant first) to content.
	files    map[string]string
	removed  []model.PatchFilePath
	archives [][2]string
	hooks    map[string]string
	extra    map[string]string
}

type fixture struct {
	t       *testing.T
	game    string
	lib     *library.Library
	patcher *Patcher
}

func newFixture(t *testing.T, registry *archive.Registry, opts ...Option) *fixture {
	t.Helper()
	game := t.TempDir()
	lib, err := library.Open(game, library.Options{})
	require.NoError(t, err)
	if registry == nil {
		registry, err = archive.NewDefaultRegistry(nil)
		require.NoError(t, err)
	}
	return &fixture{t: t, game: game, lib: lib, patcher: New(registry, opts...)}
}

func (f *fixture) writeGame(files map[string]string) {
	f.t.Helper()
	for name, content := range files {
		p := filepath.Join(f.game, filepath.FromSlash(name))
		require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(f.t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// gameFiles returns every file of the game directory outside the library.
func (f *fixture) gameFiles() map[string]string {
	f.t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(f.game, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == f.lib.Dir() {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(f.game, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(f.t, err)
	return files
}

func (f *fixture) install(m testMod) {
	f.t.Helper()
	if m.version == "" {
		m.version = "1.0.0"
	}
	dir := filepath.Join(f.t.TempDir(), m.id)

	metadata := map[string]any{"id": m.id, "version": m.version, "format_version": 1}
	if len(m.hooks) > 0 {
		metadata["hooks"] = m.hooks
	}
	writeJSON(f.t, filepath.Join(dir, "metadata.json"), metadata)

	if len(m.removed) > 0 || len(m.archives) > 0 {
		locations := make([]map[string]string, 0, len(m.archives))
		for _, a := range m.archives {
			locations = append(locations, map[string]string{"location": a[0], "location_id": a[1]})
		}
		writeJSON(f.t, filepath.Join(dir, "file_table.json"), map[string]any{
			"removed_files": m.removed,
			"archives":      locations,
		})
	}
	for name, content := range m.files {
		writeFile(f.t, filepath.Join(dir, "files", filepath.FromSlash(name)), content)
	}
	for name, content := range m.extra {
		writeFile(f.t, filepath.Join(dir, filepath.FromSlash(name)), content)
	}

	_, err := f.lib.InstallMod(context.Background(), dir)
	require.NoError(f.t, err)
}

func (f *fixture) apply() *Result {
	f.t.Helper()
	result, err := f.patcher.Apply(context.Background(), f.lib, nil)
	require.NoError(f.t, err)
	require.NotNil(f.t, result)
	return result
}

func (f *fixture) readHistory() *history.Snapshot {
	f.t.Helper()
	snap, err := f.lib.ReadHistory()
	require.NoError(f.t, err)
	return snap
}

// classified returns the history as "type:path" strings.
func classified(h *model.FileHistory) []string {
	var out []string
	for _, p := range h.AddedFiles {
		out = append(out, "added:"+p.FullFilePath())
	}
	for _, p := range h.ReplacedFiles {
		out = append(out, "replaced:"+p.FullFilePath())
	}
	for _, p := range h.RemovedFiles {
		out = append(out, "removed:"+p.FullFilePath())
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	writeFile(t, path, string(data))
}

// createZip writes a zip archive holding files to path.
func createZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	src := t.TempDir()
	disk := make(map[string]string, len(files))
	for name, content := range files {
		writeFile(t, filepath.Join(src, filepath.FromSlash(name)), content)
		disk[filepath.Join(src, filepath.FromSlash(name))] = name
	}
	list, err := archives.FilesFromDisk(context.Background(), nil, disk)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	out, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()
	require.NoError(t, archives.Zip{}.Archive(context.Background(), out, list))
}

// zipBytes returns the content of a zip archive holding files.
func zipBytes(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	createZip(t, path, files)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// zipEntries reads every entry of the zip archive at path.
func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	m, err := archive.NewZipManager().Load(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	entries := make(map[string]string)
	for _, name := range m.Files() {
		rc, err := m.Open(name)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		entries[name] = string(data)
	}
	return entries
}

// loadTestMod loads an in-memory mod removing the given files.
func loadTestMod(t *testing.T, id string, removed []model.PatchFilePath) *mod.Mod {
	t.Helper()
	table, err := json.Marshal(map[string]any{"removed_files": removed})
	require.NoError(t, err)
	m, err := mod.Load(fstest.MapFS{
		"metadata.json":   {Data: []byte(`{"id":"` + id + `","version":"1.0.0","format_version":1}`)},
		"file_table.json": {Data: table},
	})
	require.NoError(t, err)
	return m
}
