// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aibor/ezkvm/internal/exitcode"
	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/lock"
	"github.com/aibor/ezkvm/internal/qemu"
	"github.com/aibor/ezkvm/internal/qmp"
	"github.com/aibor/ezkvm/internal/sys"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const exitPollInterval = 100 * time.Millisecond

type shutdownMode int

const (
	modeStop shutdownMode = iota
	modeHibernate
)

func (m shutdownMode) String() string {
	if m == modeHibernate {
		return "hibernate"
	}

	return "stop"
}

func newStopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop NAME...",
		Short: "Stop the VMs with the given names and release their devices",
		Long: `Stop the VMs with the given names and release their devices.

QEMU is asked to quit via QMP. If that fails, it is sent SIGTERM. Several VMs
are stopped concurrently.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown(cmd.Context(), args, modeStop)
		},
	}
}

func newHibernateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hibernate NAME...",
		Short: "Send the power button event and release devices once exited",
		Long: `Send an ACPI power button event to the VMs with the given names and
release their devices once QEMU exited.

The guest must be configured to hibernate on the power button.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown(cmd.Context(), args, modeHibernate)
		},
	}
}

// shutdown shuts down all given VMs concurrently and releases the locks of
// those that exited.
func (a *app) shutdown(ctx context.Context, names []string, mode shutdownMode) error {
	l, err := a.loadLedger(ctx, false)
	if err != nil {
		return err
	}

	results := make([]error, len(names))
	stopped := make([]lock.Lock, len(names))

	var group errgroup.Group

	for idx, name := range names {
		lck, exists := l.Lock(name)
		if !exists {
			results[idx] = fmt.Errorf("%w: %s", ledger.ErrLockNotFound, name)
			continue
		}

		stopped[idx] = lck

		group.Go(func() error {
			results[idx] = a.shutdownVM(ctx, lck, l.Alive(lck), mode)
			return nil
		})
	}

	_ = group.Wait()
	_ = l.Close()

	err = a.releaseStopped(ctx, stopped, results)
	if err != nil {
		return err
	}

	return errors.Join(results...)
}

func (a *app) shutdownVM(ctx context.Context, lck lock.Lock, alive bool, mode shutdownMode) error {
	log := slog.With(slog.String("vm", lck.Name), slog.Int("pid", lck.PID))

	if !alive {
		log.Warn("VM not running, releasing stale lock")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.StopTimeout)
	defer cancel()

	err := a.requestShutdown(ctx, lck.Name, mode)
	if err != nil {
		if mode == modeHibernate {
			return fmt.Errorf("hibernate %s: %w", lck.Name, err)
		}

		log.Warn("QMP quit failed, sending SIGTERM", slog.Any("error", err))

		err = sys.Signal(lck.PID, unix.SIGTERM)
		if err != nil {
			return fmt.Errorf("stop %s: %w", lck.Name, err)
		}
	}

	err = sys.WaitExit(ctx, lck.PID, exitPollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return exitcode.New(exitcode.Timeout,
				fmt.Errorf("%w: %s after %s", ErrStopTimeout, lck.Name, a.cfg.StopTimeout))
		}

		return fmt.Errorf("%s %s: %w", mode, lck.Name, err)
	}

	log.Debug("VM exited")

	return nil
}

func (a *app) requestShutdown(ctx context.Context, name string, mode shutdownMode) error {
	client, err := qmp.Dial(ctx, qemu.QMPSocketPath(a.cfg.RunDir, name))
	if err != nil {
		return fmt.Errorf("qmp: %w", err)
	}
	defer client.Close()

	slog.Debug("QMP connected",
		slog.String("vm", name),
		slog.String("qemu", client.Version().String()))

	switch mode {
	case modeHibernate:
		return client.SystemPowerdown(ctx)
	default:
		return client.Quit(ctx)
	}
}

// releaseStopped releases the locks of all VMs that were shut down without
// error. A lock that changed in the meantime belongs to a new instance of the
// VM and is kept.
func (a *app) releaseStopped(ctx context.Context, stopped []lock.Lock, results []error) error {
	l, err := a.loadLedger(ctx, a.cfg.Exclusive)
	if err != nil {
		return err
	}
	defer closeLedger(l)

	for idx, prev := range stopped {
		if results[idx] != nil || prev.Name == "" {
			continue
		}

		current, exists := l.Lock(prev.Name)
		if exists && current.PID != prev.PID {
			slog.Warn("Lock changed during stop, keeping it",
				slog.String("vm", prev.Name),
				slog.Int("pid", current.PID))

			continue
		}

		err := l.Release(prev.Name)
		if err != nil && !errors.Is(err, ledger.ErrLockNotFound) {
			results[idx] = err
			continue
		}

		fmt.Fprintf(a.io.Stdout, "%s released\n", prev.Name)
	}

	return nil
}
