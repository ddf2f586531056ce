package cli

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasumi-bot/kasumi/internal/config"
	"github.com/kasumi-bot/kasumi/pkg/plugin"
)

// writeTestConfig sets up a temp directory layout and saves a config
// file pointing at it. Commands read it through the --config flag.
func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Dirs.Plugins = filepath.Join(tmp, "plugins")
	cfg.Dirs.Cache = filepath.Join(tmp, "cache", "plugins")
	cfg.Dirs.Data = filepath.Join(tmp, "data")
	cfg.Metrics.Enabled = false
	require.NoError(t, os.MkdirAll(cfg.Dirs.Plugins, 0755))

	cfgPath := filepath.Join(tmp, "config.json")
	require.NoError(t, config.NewLoader(cfgPath).Save(cfg))
	return cfgPath, cfg
}

func writeArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := zw.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// runCommand executes the root command with the given args and returns
// the captured output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return output.String(), err
}

func TestPluginsList(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)
	writeArchive(t, filepath.Join(cfg.Dirs.Plugins, "echo.plugin"), map[string]string{
		plugin.ManifestFileName: `{"id": "echo", "name": "Echo", "version": "1.2.0", "triggers": [{"id": "echo", "type": "text_command"}]}`,
	})
	writeArchive(t, filepath.Join(cfg.Dirs.Plugins, "quiet.plugin.disabled"), map[string]string{
		plugin.ManifestFileName: `{"id": "quiet"}`,
	})

	output, err := runCommand(t, "plugins", "list", "--config", cfgPath)
	require.NoError(t, err)

	assert.Contains(t, output, "echo")
	assert.Contains(t, output, "Echo")
	assert.Contains(t, output, "1.2.0")
	assert.Contains(t, output, "enabled")
	assert.Contains(t, output, "quiet")
	assert.Contains(t, output, "disabled")
}

func TestPluginsListEmpty(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	output, err := runCommand(t, "plugins", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "No plugin archives found")
}

func TestPluginsEnable(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)
	disabledPath := filepath.Join(cfg.Dirs.Plugins, "echo.plugin.disabled")
	writeArchive(t, disabledPath, map[string]string{
		plugin.ManifestFileName: `{"id": "echo"}`,
	})

	output, err := runCommand(t, "plugins", "enable", "echo", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Plugin echo enabled")

	_, err = os.Stat(filepath.Join(cfg.Dirs.Plugins, "echo.plugin"))
	require.NoError(t, err)
	_, err = os.Stat(disabledPath)
	assert.True(t, os.IsNotExist(err))

	// Enabling again is a no-op
	output, err = runCommand(t, "plugins", "enable", "echo", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "already enabled")
}

func TestPluginsDisable(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)
	enabledPath := filepath.Join(cfg.Dirs.Plugins, "echo.plugin")
	writeArchive(t, enabledPath, map[string]string{
		plugin.ManifestFileName: `{"id": "echo"}`,
	})

	output, err := runCommand(t, "plugins", "disable", "echo", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Plugin echo disabled")

	_, err = os.Stat(enabledPath + ".disabled")
	require.NoError(t, err)
	_, err = os.Stat(enabledPath)
	assert.True(t, os.IsNotExist(err))

	output, err = runCommand(t, "plugins", "disable", "echo", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "already disabled")
}

func TestPluginsEnableUnknown(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	_, err := runCommand(t, "plugins", "enable", "ghost", "--config", cfgPath)
	require.Error(t, err)
}
