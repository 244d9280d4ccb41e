//go:build !windows

package helper

import (
	"path/filepath"
	"testing"
)

func TestAcquireInstanceLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "htx-helper.lock")

	first, err := AcquireInstanceLock(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.Release()

	if _, err := AcquireInstanceLock(path); err == nil {
		t.Fatalf("expected second acquire on the same path to fail")
	}
}

func TestAcquireInstanceLockReusableAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "htx-helper.lock")

	first, err := AcquireInstanceLock(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := AcquireInstanceLock(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	defer second.Release()
}
