package workstore

import (
	"strings"
	"testing"
)

func TestAcquireWorkLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireWorkLock(dir)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = AcquireWorkLock(dir)
	if err == nil {
		t.Fatal("second acquire succeeded while lock held")
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := AcquireWorkLock(dir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatalf("release again: %v", err)
	}
}

func TestAcquireWorkLockRequiresDir(t *testing.T) {
	if _, err := AcquireWorkLock("  "); err == nil {
		t.Fatal("expected error for empty work dir")
	}
}
