package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolvePaths rewrites every relative artifact location to live under the
// data directory, so a single data_dir move relocates the whole tree.
// Absolute entries are honored as given.
func (c *Config) resolvePaths() {
	c.Paths.DatasetsDir = resolveUnder(c.Paths.DataDir, c.Paths.DatasetsDir)
	c.Paths.ReportsDir = resolveUnder(c.Paths.DataDir, c.Paths.ReportsDir)
	c.Paths.RunsDir = resolveUnder(c.Paths.DataDir, c.Paths.RunsDir)
	c.Paths.LogsDir = resolveUnder(c.Paths.DataDir, c.Paths.LogsDir)

	c.Source.Dir = resolveUnder(c.Paths.DataDir, c.Source.Dir)
	c.Store.Path = resolveUnder(c.Paths.DataDir, c.Store.Path)
	if c.Notify.Outbox != "" {
		c.Notify.Outbox = resolveUnder(c.Paths.DataDir, c.Notify.Outbox)
	}
	if c.Logging.FilePath != "" {
		c.Logging.FilePath = resolveUnder(c.Paths.LogsDir, c.Logging.FilePath)
	}
}

// resolveUnder joins path under base unless path is already absolute.
func resolveUnder(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// EnsureDirs creates every directory a run writes into. The source directory
// is included so a fresh install has a visible drop point for extracts.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.DatasetsDir,
		c.Paths.ReportsDir,
		c.Paths.RunsDir,
		c.Paths.LogsDir,
		c.Source.Dir,
	}
	if c.Store.Backend == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Notify.Outbox != "" {
		dirs = append(dirs, filepath.Dir(c.Notify.Outbox))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}
	return nil
}
