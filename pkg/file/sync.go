package file

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
)

// SyncDir fsyncs a directory so a preceding rename inside it is durable.
// Filesystems that reject fsync on directories (EINVAL) are tolerated.
func SyncDir(dir string) error {
	d, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}
