package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("error writing temporary file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("error syncing temporary file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("error setting file mode: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("error replacing %s: %w", path, err)
	}

	return nil
}

// PruneBackups keeps the newest keep files in dir named prefix*ext. Backup
// names embed a sortable UTC timestamp, so name order is age order.
func PruneBackups(dir, prefix, ext string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}

		names = append(names, name)
	}

	if len(names) <= keep {
		return nil
	}

	sort.Strings(names)

	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	return nil
}
