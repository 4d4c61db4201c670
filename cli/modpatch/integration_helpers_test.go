//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns what it printed to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	cmd := newRootCmd()
	cmd.SetArgs(args)
	runErr := cmd.ExecuteContext(context.Background())

	_ = w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String(), runErr
}

// setupGame creates a game directory and a config file pointing at it.
func setupGame(t *testing.T, files map[string]string) (gameDir, cfgPath string) {
	t.Helper()
	root := t.TempDir()
	gameDir = filepath.Join(root, "game")
	writeFiles(t, gameDir, files)
	require.NoError(t, os.MkdirAll(gameDir, 0o755))

	cfgPath = filepath.Join(root, "config.yaml")
	yamlContent := `game:
  dir: ` + gameDir + `
  id: rayman2
settings:
  log_level: error
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0o600))
	return gameDir, cfgPath
}

// createModSource writes an unpacked mod directory.
func createModSource(t *testing.T, id string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), id)
	all := map[string]string{
		"metadata.json": `{"id":"` + id + `","version":"1.0.0","format_version":1,"name":"Test ` + id + `","games":[{"id":"rayman2"}]}`,
	}
	for k, v := range files {
		all[k] = v
	}
	writeFiles(t, dir, all)
	return dir
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}
