package plugin

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchive builds a plugin archive at path from entry name to
// content.
func writeArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestReadArchive(t *testing.T) {
	reader := NewManifestReader(zerolog.Nop())
	dir := t.TempDir()

	t.Run("reads manifest from archive root", func(t *testing.T) {
		path := filepath.Join(dir, "echo.plugin")
		writeArchive(t, path, map[string]string{
			ManifestFileName:   `{"id": "echo", "triggers": [{"id": "echo", "type": "text_command"}]}`,
			"src/echo/echo.go": "package echo\n",
		})

		manifest, err := reader.ReadArchive(path)
		require.NoError(t, err)
		assert.Equal(t, "echo", manifest.ID)
		require.Len(t, manifest.Triggers, 1)
		assert.Equal(t, "echo", manifest.Triggers[0].ID)
	})

	t.Run("missing manifest entry", func(t *testing.T) {
		path := filepath.Join(dir, "bare.plugin")
		writeArchive(t, path, map[string]string{
			"src/bare/bare.go": "package bare\n",
		})

		_, err := reader.ReadArchive(path)
		require.ErrorIs(t, err, ErrMalformedPackage)
		assert.Contains(t, err.Error(), ManifestFileName)
	})

	t.Run("not a zip", func(t *testing.T) {
		path := filepath.Join(dir, "mangled.plugin")
		require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

		_, err := reader.ReadArchive(path)
		require.ErrorIs(t, err, ErrMalformedPackage)
	})
}

func TestExtract(t *testing.T) {
	extractor := NewExtractor(zerolog.Nop())
	dir := t.TempDir()

	archive := filepath.Join(dir, "echo.plugin")
	writeArchive(t, archive, map[string]string{
		ManifestFileName:   `{"id": "echo"}`,
		"src/echo/echo.go": "package echo\n",
	})

	t.Run("extracts into workspace", func(t *testing.T) {
		workspace := filepath.Join(dir, "ws1")
		require.NoError(t, extractor.Extract(archive, workspace))

		data, err := os.ReadFile(filepath.Join(workspace, "src", "echo", "echo.go"))
		require.NoError(t, err)
		assert.Equal(t, "package echo\n", string(data))
	})

	t.Run("replaces previous extraction", func(t *testing.T) {
		workspace := filepath.Join(dir, "ws2")
		require.NoError(t, os.MkdirAll(workspace, 0o755))
		stale := filepath.Join(workspace, "stale.go")
		require.NoError(t, os.WriteFile(stale, []byte("package old\n"), 0o644))

		require.NoError(t, extractor.Extract(archive, workspace))

		_, err := os.Stat(stale)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(workspace, ManifestFileName))
		assert.NoError(t, err)
	})

	t.Run("unreadable archive", func(t *testing.T) {
		broken := filepath.Join(dir, "broken.plugin")
		require.NoError(t, os.WriteFile(broken, []byte("junk"), 0o644))

		err := extractor.Extract(broken, filepath.Join(dir, "ws3"))
		require.ErrorIs(t, err, ErrExtraction)
	})
}
