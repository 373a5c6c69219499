// Package fsutil provides the file-system primitives the driver needs
// around the archive's state directory: scanning a suite tree, writing
// state files without risking a half-written file on crash, and
// serializing concurrent runs against the same state directory.
package fsutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"
	flock "github.com/theckman/go-flock"
)

// ListSuiteFiles returns every regular file under root, sorted, skipping
// directories themselves. The driver uses it to enumerate hint files.
func ListSuiteFiles(root string) ([]string, error) {
	var files []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			files = append(files, path)
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking suite directory %s", root)
	}
	sort.Strings(files)
	return files, nil
}

// AtomicWriteFile writes data to path without ever leaving a
// half-written file in its place: it writes to a sibling "<name>_new"
// file first, then renames it over path. If a previous version of path
// exists, it is backed up to "<name>.orig" via shutil.CopyFile before
// being replaced, mirroring the archive's own age-policy-dates rotation.
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := path + "_new"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "writing temp file for %s", path)
	}

	if _, err := os.Stat(path); err == nil {
		if err := shutil.CopyFile(path, path+".orig", true); err != nil {
			return errors.Wrapf(err, "backing up %s before replace", path)
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "renaming %s into place in %s", tmp, dir)
	}
	return nil
}

// StateLock is an advisory, process-wide lock over the archive's state
// directory: only one migration run may mutate it at a time.
type StateLock struct {
	fl *flock.Flock
}

// NewStateLock returns a StateLock guarded by a lockfile at path. The
// lockfile itself is created on first TryLock if it does not exist.
func NewStateLock(path string) *StateLock {
	return &StateLock{fl: flock.NewFlock(path)}
}

// TryLock attempts to acquire the lock without blocking, reporting
// whether it succeeded.
func (s *StateLock) TryLock() (bool, error) {
	ok, err := s.fl.TryLock()
	if err != nil {
		return false, errors.Wrapf(err, "locking state directory via %s", s.fl.Path())
	}
	return ok, nil
}

// Unlock releases the lock.
func (s *StateLock) Unlock() error {
	return errors.Wrap(s.fl.Unlock(), "unlocking state directory")
}
