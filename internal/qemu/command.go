// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/aibor/ezkvm/internal/sys"
)

const startPollInterval = 50 * time.Millisecond

// DefaultStartTimeout is the time a QEMU process must survive to be
// considered started.
const DefaultStartTimeout = 2 * time.Second

// Command is a single QEMU command that can be started.
type Command struct {
	// Path to the qemu-system binary.
	Executable string

	// Args are the arguments passed to the binary.
	Args []string

	// LogPath is the file stdout and stderr of the process are appended to.
	// If empty, output is discarded.
	LogPath string

	// StartTimeout is the time the process must keep running for the start
	// to be confirmed. Defaults to [DefaultStartTimeout].
	StartTimeout time.Duration
}

// NewCommand creates a new [Command] from the given [CommandSpec].
func NewCommand(spec CommandSpec) (*Command, error) {
	spec.AddDefaults()

	err := spec.Validate()
	if err != nil {
		return nil, err
	}

	args, err := BuildArgumentStrings(spec.arguments())
	if err != nil {
		return nil, &ArgumentError{err.Error()}
	}

	return &Command{
		Executable: spec.Executable,
		Args:       args,
		LogPath:    LogPath(spec.RunDir, spec.Name),
	}, nil
}

// String returns the command line of the [Command].
func (c *Command) String() string {
	return exec.Command(c.Executable, c.Args...).String()
}

// Start spawns the QEMU process in a new session and waits until it survived
// [Command.StartTimeout]. It returns the PID of the confirmed process.
//
// The process is not bound to the given context once confirmed. If the
// context is done before, the process is killed. If the process exits before,
// a [CommandError] wrapping [ErrEarlyExit] is returned.
func (c *Command) Start(ctx context.Context) (int, error) {
	timeout := c.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	cmd := exec.Command(c.Executable, c.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if c.LogPath != "" {
		logFile, err := os.OpenFile(c.LogPath,
			os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
		if err != nil {
			return 0, &CommandError{Err: fmt.Errorf("open log: %w", err)}
		}
		defer logFile.Close()

		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	err := cmd.Start()
	if err != nil {
		return 0, &CommandError{Err: err}
	}

	pid := cmd.Process.Pid

	err = c.confirm(ctx, pid, timeout)
	if err != nil {
		if errors.Is(err, ErrEarlyExit) {
			return 0, &CommandError{Err: err, ExitCode: reap(cmd)}
		}

		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return 0, &CommandError{Err: err}
	}

	// The process keeps running after this process exits.
	_ = cmd.Process.Release()

	return pid, nil
}

// confirm polls the process until the timeout passed. An exited child stays a
// zombie until reaped, which [sys.ProcessAlive] reports as not alive.
func (c *Command) confirm(ctx context.Context, pid int, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if !sys.ProcessAlive(pid) {
				return ErrEarlyExit
			}

			return nil
		case <-ticker.C:
			if !sys.ProcessAlive(pid) {
				return ErrEarlyExit
			}
		}
	}
}

func reap(cmd *exec.Cmd) int {
	err := cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 0
}
