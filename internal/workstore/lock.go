package workstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	workLockDirName   = ".work.lock"
	workLockOwnerFile = "owner.json"
)

// WorkLock guards a work directory so two enhancement runs cannot interleave
// batch directories and segment files.
type WorkLock struct {
	lockDir string
}

type workLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireWorkLock(workDir string) (WorkLock, error) {
	target := strings.TrimSpace(workDir)
	if target == "" {
		return WorkLock{}, fmt.Errorf("work directory is required")
	}

	lockDir := filepath.Join(target, workLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			ownerPath := filepath.Join(lockDir, workLockOwnerFile)
			var owner workLockOwner
			if readErr := ReadJSON(ownerPath, &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return WorkLock{}, fmt.Errorf(
					"work directory is locked: %s (pid=%d created_at=%s host=%s)",
					target, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return WorkLock{}, fmt.Errorf("work directory is locked: %s", target)
		}
		return WorkLock{}, fmt.Errorf("acquire work lock for %s: %w", target, err)
	}

	owner := workLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	ownerPath := filepath.Join(lockDir, workLockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return WorkLock{}, fmt.Errorf("write work lock owner for %s: %w", target, err)
	}

	return WorkLock{lockDir: lockDir}, nil
}

func (l WorkLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, workLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release work lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
