// Package atomicfile replaces files so readers see either the old or the
// new content, never a truncated mix.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// WriteFile writes data to a temp file next to path, syncs it, and renames
// it over path. The parent directory is created when missing.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return fmt.Errorf("atomicfile: mkdir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: create tmp: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicfile: write tmp: %w", err)
	}
	if err := f.Chmod(defaultFileMode); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicfile: chmod tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicfile: sync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicfile: close tmp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicfile: rename: %w", err)
	}
	return nil
}
