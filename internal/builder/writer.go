package builder

import (
	"os"
	"path/filepath"
)

func ensureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// writeFile writes to a temp file first, then renames for atomicity.
func writeFile(path string, data []byte) error {
	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
