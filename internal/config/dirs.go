package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrepareDirs creates the directories the database file and provisioning artifacts live in.
func (c *Config) PrepareDirs() error {
	dirs := []string{c.Provisioning.ArtifactsDir}
	if c.DB.Path != "" && c.DB.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.DB.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
