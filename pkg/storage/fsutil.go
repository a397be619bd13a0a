package storage

import (
	"errors"
	"os"
	"runtime"
	"syscall"
)

// SyncDir flushes a directory's entries so freshly written value and sidecar
// files survive a crash. Platforms and filesystems that cannot sync a
// directory are not errors: Windows has no directory sync at all, and tmpfs
// rejects it with EINVAL.
func SyncDir(dir string) error {
	if dir == "" || runtime.GOOS == "windows" {
		return nil
	}
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	if err := df.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}
