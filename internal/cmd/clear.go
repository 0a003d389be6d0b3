// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newClearCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear NAME...",
		Short: "Remove locks without touching any process",
		Long: `Remove locks without touching any process.

This frees the resources of VMs that are gone without being stopped. Locks of
running VMs are only removed with --force.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.clear(cmd.Context(), args, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false,
		"remove locks of running VMs as well")

	return cmd
}

func (a *app) clear(ctx context.Context, names []string, force bool) error {
	l, err := a.loadLedger(ctx, a.cfg.Exclusive)
	if err != nil {
		return err
	}
	defer closeLedger(l)

	var errs []error

	for _, name := range names {
		if lck, live := l.LiveLock(name); live && !force {
			errs = append(errs, fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, lck.PID))
			continue
		}

		err := l.Release(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		slog.Info("Lock cleared", slog.String("vm", name))
		fmt.Fprintf(a.io.Stdout, "%s cleared\n", name)
	}

	return errors.Join(errs...)
}
