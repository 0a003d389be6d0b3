// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cmd provides the CLI command entry point for ezkvm. It handles
// subcommands, configuration, logging and mapping of errors to exit codes.
package cmd
