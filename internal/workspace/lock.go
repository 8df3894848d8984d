package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
)

// Lock is an exclusive, cross-process claim on a workspace. The lock file
// sits next to the workspace so clearing the workspace leaves it alone.
type Lock struct {
	fl *flock.Flock
}

// LockPath returns the lock file guarding workspace.
func LockPath(workspace string) string {
	return filepath.Clean(workspace) + ".lock"
}

// Acquire takes the workspace lock without waiting. It fails with
// ErrWorkspaceBusy when another process or Lock holds it.
func Acquire(workspace string) (*Lock, error) {
	path := LockPath(workspace)
	if err := os.MkdirAll(filepath.Dir(path), fileutil.DirPerms); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", hwerrors.ErrIO, filepath.Dir(path), err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: locking %s: %w", hwerrors.ErrIO, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", hwerrors.ErrWorkspaceBusy, workspace)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks the workspace. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	return err
}
