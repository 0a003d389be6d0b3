// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aibor/ezkvm/internal/hostdev"
	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/machine"
	"github.com/aibor/ezkvm/internal/qemu"
	"github.com/aibor/ezkvm/internal/sys"
	"github.com/spf13/cobra"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func newStartCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start NAME",
		Short: "Start the VM with the given name",
		Long: `Start the VM with the given name.

Devices are claimed from their pools in the order they are listed in the VM
definition. The claims are persisted once QEMU survived the start timeout.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := a.start(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s started with pid %d\n", args[0], pid)

			return nil
		},
	}
}

func (a *app) start(ctx context.Context, name string) (int, error) {
	vm, err := machine.Load(a.cfg.MachineDir, name)
	if err != nil {
		return 0, err
	}

	extraArgs, err := qemu.ParseArgs(vm.Args)
	if err != nil {
		return 0, fmt.Errorf("machine %s: %w", name, err)
	}

	l, err := a.loadLedger(ctx, a.cfg.Exclusive)
	if err != nil {
		return 0, err
	}
	defer closeLedger(l)

	if lck, live := l.LiveLock(name); live {
		return 0, fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, lck.PID)
	}

	devices, err := claimDevices(l, vm)
	if err != nil {
		l.Abandon()
		return 0, err
	}

	qemuCmd, err := a.qemuCommand(vm, devices, extraArgs)
	if err != nil {
		l.Abandon()
		return 0, err
	}

	slog.Debug("QEMU command", slog.String("command", qemuCmd.String()))

	pid, err := qemuCmd.Start(ctx)
	if err != nil {
		l.Abandon()
		return 0, fmt.Errorf("start %s (see %s): %w", name, qemuCmd.LogPath, err)
	}

	err = l.Persist(name, pid)
	if err != nil {
		// A VM without lock holds its devices unnoticed.
		slog.Error("Killing VM without lock",
			slog.String("vm", name),
			slog.Int("pid", pid))

		_ = sys.Signal(pid, unix.SIGKILL)

		l.Abandon()

		return 0, fmt.Errorf("persist %s: %w", name, err)
	}

	return pid, nil
}

func (a *app) qemuCommand(
	vm *machine.Machine,
	devices []qemu.Argument,
	extraArgs []qemu.Argument,
) (*qemu.Command, error) {
	err := os.MkdirAll(a.cfg.RunDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	qemuCmd, err := qemu.NewCommand(qemu.CommandSpec{
		Executable: cmp.Or(vm.QEMU, a.cfg.QEMUBin),
		Name:       vm.Name,
		Machine:    vm.Machine,
		NoKVM:      a.cfg.NoKVM || !a.kvmAvailable(),
		RunDir:     a.cfg.RunDir,
		Devices:    devices,
		ExtraArgs:  extraArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("machine %s: %w", vm.Name, err)
	}

	qemuCmd.StartTimeout = a.cfg.StartTimeout

	return qemuCmd, nil
}

// claimDevices claims a resource for each device of the VM, prepares it on
// the host and returns the QEMU arguments for all of them.
func claimDevices(l *ledger.Ledger, vm *machine.Machine) ([]qemu.Argument, error) {
	var (
		args []qemu.Argument
		nl   *netlink.Handle
	)

	defer func() {
		if nl != nil {
			nl.Close()
		}
	}()

	for idx, dev := range vm.Devices {
		id, err := l.Claim(dev.Pool)
		if err != nil {
			return nil, fmt.Errorf("claim device %d: %w", idx, err)
		}

		desc, err := l.Resource(dev.Pool, id)
		if err != nil {
			return nil, fmt.Errorf("claim device %d: %w", idx, err)
		}

		slog.Info("Device claimed",
			slog.String("pool", dev.Pool),
			slog.String("resource", id),
			slog.String("kind", string(desc.Kind())))

		mac, err := dev.HardwareAddr()
		if err != nil {
			return nil, err
		}

		if mac != nil && nl == nil {
			nl, err = netlink.NewHandle()
			if err != nil {
				return nil, fmt.Errorf("netlink: %w", err)
			}
		}

		err = hostdev.Prepare(nl, desc, mac)
		if err != nil {
			return nil, fmt.Errorf("prepare %s: %w", id, err)
		}

		devArgs, err := qemu.DeviceArgs(idx, desc)
		if err != nil {
			return nil, err
		}

		args = append(args, devArgs...)
	}

	return args, nil
}
