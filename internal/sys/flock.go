// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const fileLockPollInterval = 50 * time.Millisecond

// FileLock is an exclusive advisory lock on a file acquired with flock(2).
//
// The lock is bound to the open file description, so two [FileLock]s on the
// same path exclude each other even within one process.
type FileLock struct {
	file *os.File
}

// LockFile acquires an exclusive lock on the file with the given path. The file
// is created if it does not exist.
//
// It does not block in the kernel but polls until the lock is acquired or the
// context is done.
func LockFile(ctx context.Context, path string) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(fileLockPollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &FileLock{file: file}, nil
		}

		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = file.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return nil, fmt.Errorf("flock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Path returns the path of the locked file.
func (l *FileLock) Path() string {
	if l == nil || l.file == nil {
		return ""
	}

	return l.file.Name()
}

// Unlock releases the lock. It is safe to call more than once.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlock %s: %w", l.file.Name(), unlockErr)
	}

	closeErr := l.file.Close()
	l.file = nil

	return errors.Join(unlockErr, closeErr)
}
