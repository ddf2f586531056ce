package cli

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kasumi-bot/kasumi/pkg/plugin"
)

var buildOut string

var buildCmd = &cobra.Command{
	Use:   "build [source-dir]",
	Short: "Build plugin archives from source trees",
	Long: `Build a .plugin archive for every plugin source tree under the
source directory (default plugins_src). Each subdirectory must contain
an info.json manifest whose id matches the directory name; the whole
tree is zipped into <id>.plugin in the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "plugins", "output directory for built archives")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	srcDir := "plugins_src"
	if len(args) == 1 {
		srcDir = args[0]
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No plugin sources found in %s\n", srcDir)
		return nil
	}

	if err := os.MkdirAll(buildOut, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	reader := plugin.NewManifestReader(zerolog.New(os.Stderr).Level(zerolog.WarnLevel))

	workers := runtime.NumCPU() * 4
	if workers > 32 {
		workers = 32
	}

	errs := make([]error, len(names))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[i] = buildPlugin(reader, filepath.Join(srcDir, name), name, buildOut)
		}(i, name)
	}
	wg.Wait()

	failed := 0
	for i, name := range names {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "failed %s: %v\n", name, errs[i])
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "built %s.plugin\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plugins failed to build", failed, len(names))
	}
	return nil
}

// buildPlugin zips one plugin source tree into out/<name>.plugin. The
// manifest id must match the directory name so the archive, the
// extraction workspace and the catalog entry all agree on the same id.
func buildPlugin(reader *plugin.ManifestReader, dir, name, out string) error {
	data, err := os.ReadFile(filepath.Join(dir, plugin.ManifestFileName))
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	manifest, err := reader.Parse(data)
	if err != nil {
		return err
	}
	if manifest.ID != name {
		return fmt.Errorf("manifest id %q does not match directory name %q", manifest.ID, name)
	}

	target := filepath.Join(out, name+".plugin")
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale archive: %w", err)
	}

	if err := zipTree(dir, target); err != nil {
		os.Remove(target)
		return err
	}
	return nil
}

// zipTree writes every regular file under dir into a zip archive at
// target, with paths relative to dir and forward slashes throughout.
func zipTree(dir, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
