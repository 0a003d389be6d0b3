// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aibor/ezkvm/internal/exitcode"
	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/machine"
	"github.com/spf13/cobra"
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ezkvm",
		Short: "Run QEMU VMs with exclusively claimed host devices",
		Long: `ezkvm starts and stops QEMU VMs defined in YAML files.

Host devices like GPUs, PCI functions and SR-IOV virtual functions are claimed
from resource pools on start. A claim is recorded in a lock file while the VM
runs, so no device is passed to two VMs at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Flags())
		},
	}

	addConfigFlags(root.PersistentFlags())

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})

	root.SetIn(a.io.Stdin)
	root.SetOut(a.io.Stdout)
	root.SetErr(a.io.Stderr)

	root.AddCommand(
		newStartCommand(a),
		newStopCommand(a),
		newHibernateCommand(a),
		newStatusCommand(a),
		newPoolsCommand(a),
		newListCommand(a),
		newClearCommand(a),
	)

	return root
}

// exactArgs is like [cobra.ExactArgs] but returns an [ErrUsage].
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		err := cobra.ExactArgs(n)(cmd, args)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUsage, err)
		}

		return nil
	}
}

// minArgs is like [cobra.MinimumNArgs] but returns an [ErrUsage].
func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		err := cobra.MinimumNArgs(n)(cmd, args)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUsage, err)
		}

		return nil
	}
}

// exitCodeFor maps the given error to the exit code of the command.
func exitCodeFor(err error) int {
	if code, isExitErr := exitcode.From(err); isExitErr || err == nil {
		return code
	}

	switch {
	case errors.Is(err, ErrUsage):
		return exitcode.Usage
	case errors.Is(err, ledger.ErrResourceNotAvailable):
		return exitcode.Unavailable
	case errors.Is(err, ErrAlreadyRunning),
		errors.Is(err, ledger.ErrLockHeld):
		return exitcode.Running
	case errors.Is(err, ErrStopTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return exitcode.Timeout
	case errors.Is(err, machine.ErrNotFound),
		errors.Is(err, ledger.ErrPoolNotFound),
		errors.Is(err, ledger.ErrLockNotFound):
		return exitcode.NotFound
	default:
		return exitcode.Failure
	}
}

func handleError(err error) int {
	if err != nil {
		slog.Error(err.Error())
	}

	return exitCodeFor(err)
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	setupLogging(cfg.Stderr, slog.LevelWarn)

	root := newRootCommand(newApp(cfg))
	root.SetArgs(args)

	return handleError(root.ExecuteContext(ctx))
}
