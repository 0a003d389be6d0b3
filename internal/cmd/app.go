// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/sys"
	"github.com/spf13/pflag"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	io  IO
	cfg Config

	processAlive func(pid int) bool
	kvmAvailable func() bool
}

func newApp(cfg IO) *app {
	return &app{
		io:           cfg,
		processAlive: sys.ProcessAlive,
		kvmAvailable: sys.KVMAvailable,
	}
}

// init loads the configuration and sets up logging accordingly.
func (a *app) init(flags *pflag.FlagSet) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	level, err := parseLogLevel(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return err
	}

	setupLogging(a.io.Stderr, level)

	a.cfg = cfg

	slog.Debug("Configuration loaded", slog.Any("config", cfg))

	return nil
}

// loadLedger loads the ledger. If exclusive, it waits up to the configured
// lock timeout for other invocations to release the ledger.
func (a *app) loadLedger(ctx context.Context, exclusive bool) (*ledger.Ledger, error) {
	if exclusive {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.cfg.LockTimeout)
		defer cancel()
	}

	l, err := ledger.Load(ctx, ledger.Config{
		ResourceDir:  a.cfg.ResourceDir,
		LockDir:      a.cfg.LockDir,
		Exclusive:    exclusive,
		ProcessAlive: a.processAlive,
		Logger:       slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	return l, nil
}

func closeLedger(l *ledger.Ledger) {
	err := l.Close()
	if err != nil {
		slog.Error("Failed to close ledger", slog.Any("error", err))
	}
}
