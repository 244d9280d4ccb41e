//go:build !windows

package helper

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/veilproto/htx/internal/xerrors"
)

type flockLock struct {
	f *os.File
}

func (l *flockLock) Release() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

func acquireInstanceLock(path string) (InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "helper", "opening lock file failed", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, xerrors.Wrap(xerrors.KindStateInvariantViolated, "helper", "another helper instance already holds the lock", err)
	}
	return &flockLock{f: f}, nil
}
