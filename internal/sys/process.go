// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const procDir = "/proc"

// ProcessAlive reports whether a process with the given pid exists and is not
// a zombie.
//
// A process owned by another user counts as alive, since signal 0 fails with
// EPERM for it.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}

	return !isZombie(pid)
}

func isZombie(pid int) bool {
	stat, err := os.ReadFile(filepath.Join(procDir, strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}

	return processState(stat) == 'Z'
}

// processState returns the state field of the given /proc/<pid>/stat content.
//
// The command name in the second field may contain spaces and parentheses, so
// the state is located relative to the last closing parenthesis.
func processState(stat []byte) byte {
	idx := bytes.LastIndexByte(stat, ')')
	if idx < 0 || idx+2 >= len(stat) {
		return 0
	}

	return stat[idx+2]
}

// Signal sends the given signal to the process with the given pid.
func Signal(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}

	err := unix.Kill(pid, sig)
	if err != nil {
		return fmt.Errorf("send %s to %d: %w", unix.SignalName(sig), pid, err)
	}

	return nil
}

// WaitExit blocks until the process with the given pid is gone or the context
// is done. Liveness is polled with the given interval.
func WaitExit(ctx context.Context, pid int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ProcessAlive(pid) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for exit of %d: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}
