// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/machine"
	"github.com/aibor/ezkvm/internal/resource"
	"github.com/spf13/cobra"
)

func newTableWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List locks of running VMs",
		Long: `List locks of running VMs.

A lock whose process is gone is marked stale. Its resources stay claimed until
it is cleared or the VM is stopped.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.loadLedger(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeLedger(l)

			return writeStatus(cmd.OutOrStdout(), l)
		},
	}
}

func writeStatus(w io.Writer, l *ledger.Ledger) error {
	table := newTableWriter(w)

	fmt.Fprintln(table, "NAME\tPID\tSTATE\tCREATED\tRESOURCES")

	for _, lck := range l.Locks() {
		state := "running"
		if !l.Alive(lck) {
			state = "stale"
		}

		created := "-"
		if !lck.Created.IsZero() {
			created = lck.Created.Local().Format(time.DateTime)
		}

		fmt.Fprintf(table, "%s\t%d\t%s\t%s\t%s\n",
			lck.Name,
			lck.PID,
			state,
			created,
			joinOrDash(lck.Resources),
		)
	}

	return table.Flush()
}

func newPoolsCommand(a *app) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List resource pools and the owners of their resources",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.loadLedger(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeLedger(l)

			return writePools(cmd.OutOrStdout(), l, tags)
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil,
		"only list resources carrying all given tags")

	return cmd
}

func writePools(w io.Writer, l *ledger.Ledger, tags []string) error {
	table := newTableWriter(w)

	fmt.Fprintln(table, "POOL\tRESOURCE\tKIND\tTAGS\tOWNER")

	for _, pool := range l.Pools() {
		for _, desc := range pool.Resources() {
			if !hasTags(desc, tags) {
				continue
			}

			owner, owned := l.Owner(desc.ID)
			if !owned {
				owner = "-"
			}

			fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n",
				pool.ID(),
				desc.ID,
				desc.Kind(),
				joinOrDash(desc.Tags),
				owner,
			)
		}
	}

	return table.Flush()
}

func hasTags(desc resource.Descriptor, tags []string) bool {
	for _, tag := range tags {
		if !desc.HasTag(tag) {
			return false
		}
	}

	return true
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List defined VMs and whether they run",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := machine.List(a.cfg.MachineDir)
			if err != nil {
				return err
			}

			l, err := a.loadLedger(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeLedger(l)

			return writeMachines(cmd.OutOrStdout(), l, names)
		},
	}
}

func writeMachines(w io.Writer, l *ledger.Ledger, names []string) error {
	table := newTableWriter(w)

	fmt.Fprintln(table, "NAME\tSTATE\tPID")

	for _, name := range names {
		state, pid := "stopped", "-"

		if lck, exists := l.Lock(name); exists {
			state = "running"
			if !l.Alive(lck) {
				state = "stale"
			}

			pid = strconv.Itoa(lck.PID)
		}

		fmt.Fprintf(table, "%s\t%s\t%s\n", name, state, pid)
	}

	return table.Flush()
}

func joinOrDash(elems []string) string {
	if len(elems) == 0 {
		return "-"
	}

	return strings.Join(elems, ",")
}
