// Package storage persists the small JSON caches the service keeps
// between runs under the user's home directory.
package storage

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// appDirName is the per-user directory all cache files live in.
const appDirName = ".duetto"

// CacheDir returns <home>/.duetto/cache, creating it if needed.
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	dir := filepath.Join(home, appDirName, "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create cache dir %s", dir)
	}
	return dir, nil
}

// CachePath returns the full path for a named cache file, creating the
// cache directory on first use.
func CachePath(name string) (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ReadIfExists returns the contents of path. found is false when the
// file does not exist; that case is not an error.
func ReadIfExists(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "read %s", path)
	}
	return b, true, nil
}

// WriteAtomic writes data to path using an atomic write pattern:
// 1. Write to a temporary file in the same directory.
// 2. Sync to ensure data is on disk.
// 3. Rename the temporary file to the destination (atomic operation).
// A crash mid-write leaves the previous file intact.
func WriteAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync %s", tmp)
	}
	// Close explicitly before renaming (essential on Windows).
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "replace %s", path)
	}
	return nil
}
