// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"path/filepath"
)

const (
	// DefaultExecutable is the QEMU binary used if none is given.
	DefaultExecutable = "qemu-system-x86_64"

	// DefaultMachine is the machine type used if none is given. PCIe root
	// ports used for passthrough require q35.
	DefaultMachine = "q35"
)

// CommandSpec defines the parameters for a [Command].
type CommandSpec struct {
	// Path to the qemu-system binary.
	Executable string

	// Name of the VM. Used as QEMU process name and socket file stem.
	Name string

	// QEMU machine type and options, like "q35,hpet=off".
	Machine string

	// Disable KVM support.
	NoKVM bool

	// RunDir contains the QMP socket and log file of the VM.
	RunDir string

	// Devices are arguments for passed through host devices, as returned by
	// [DeviceArgs].
	Devices []Argument

	// ExtraArgs are extra arguments that are passed to the QEMU command.
	// They must not interfere with the essential arguments set by the command
	// itself or an error will be returned by [NewCommand].
	ExtraArgs []Argument
}

// QMPSocketPath returns the path of the QMP socket of the VM with the given
// name in the given run directory.
func QMPSocketPath(runDir, name string) string {
	return filepath.Join(runDir, name+".qmp")
}

// LogPath returns the path of the file QEMU output of the VM with the given
// name is written to.
func LogPath(runDir, name string) string {
	return filepath.Join(runDir, name+".log")
}

// AddDefaults sets default values for fields that are not set yet.
func (s *CommandSpec) AddDefaults() {
	if s.Executable == "" {
		s.Executable = DefaultExecutable
	}

	if s.Machine == "" {
		s.Machine = DefaultMachine
	}
}

// Validate checks that all required fields are set.
func (s *CommandSpec) Validate() error {
	switch {
	case s.Executable == "":
		return &ArgumentError{"no executable"}
	case s.Name == "":
		return &ArgumentError{"no name"}
	case s.RunDir == "":
		return &ArgumentError{"no run dir"}
	default:
		return nil
	}
}

// arguments compiles the argument list for the QEMU command.
func (s *CommandSpec) arguments() []Argument {
	accel := "kvm"
	if s.NoKVM {
		accel = "tcg"
	}

	args := []Argument{
		UniqueArg("name", s.Name),
		UniqueArg("machine", s.Machine),
		UniqueArg("accel", accel),
		UniqueArg("qmp",
			"unix:"+QMPSocketPath(s.RunDir, s.Name),
			"server=on",
			"wait=off",
		),
		// Do not load any user config files.
		UniqueArg("no-user-config"),
	}

	args = append(args, s.Devices...)
	args = append(args, s.ExtraArgs...)

	return args
}
