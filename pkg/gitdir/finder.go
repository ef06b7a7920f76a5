package gitdir

import (
	"errors"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
)

// Finder performs the ancestor search used when Config.Roam is set.
//
// Find returns the absolute path of the entry called name in dir or in the
// nearest ancestor of dir that has one, or "" when no directory up to the
// filesystem root does.
type Finder interface {
	Find(name, dir string) (string, error)
}

// FinderFunc adapts an ordinary function to the Finder interface.
type FinderFunc func(name, dir string) (string, error)

// Find calls f(name, dir).
func (f FinderFunc) Find(name, dir string) (string, error) {
	return f(name, dir)
}

// UpwardFinder walks from a directory towards the filesystem root looking
// for a named entry of any type.
type UpwardFinder struct {
	fs afero.Fs
}

// NewUpwardFinder returns a Finder over fsys.
func NewUpwardFinder(fsys afero.Fs) *UpwardFinder {
	return &UpwardFinder{fs: fsys}
}

// Find implements Finder. Directories that do not exist are walked through,
// so a start directory that was removed still finds its ancestors' entry.
func (f *UpwardFinder) Find(name, dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, name)
		_, err := f.fs.Stat(path)
		switch {
		case err == nil:
			return path, nil
		case isNotExist(err), errors.Is(err, syscall.ENOTDIR):
			// keep climbing
		default:
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
