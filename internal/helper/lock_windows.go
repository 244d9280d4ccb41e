//go:build windows

package helper

import (
	"os"

	"github.com/veilproto/htx/internal/xerrors"
)

// windowsLock backs the single-instance lock with exclusive file creation:
// golang.org/x/sys/unix's flock has no Windows implementation, and the
// helper's Windows story does not otherwise appear in the reference pack,
// so this falls back to the one cross-platform primitive the standard
// library guarantees: os.O_EXCL atomically fails if the file already
// exists.
type windowsLock struct {
	f    *os.File
	path string
}

func (l *windowsLock) Release() error {
	defer os.Remove(l.path)
	return l.f.Close()
}

func acquireInstanceLock(path string) (InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "helper", "another helper instance already holds the lock", err)
	}
	return &windowsLock{f: f, path: path}, nil
}
