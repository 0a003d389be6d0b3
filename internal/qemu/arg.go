// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// uniqueArgNames are QEMU options that may be given only once. Any other
// option parsed by [ParseArgs] is considered repeatable.
var uniqueArgNames = []string{
	"accel",
	"bios",
	"boot",
	"cpu",
	"daemonize",
	"display",
	"enable-kvm",
	"m",
	"machine",
	"monitor",
	"name",
	"no-user-config",
	"nodefaults",
	"pidfile",
	"qmp",
	"rtc",
	"smp",
	"uuid",
	"vga",
}

// Argument is a QEMU argument with or without value.
//
// Its name might be marked to be unique in a list of [Argument]s.
type Argument struct {
	name          string
	value         string
	nonUniqueName bool
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	s := "-" + a.name
	if a.value != "" {
		s += " " + a.value
	}

	return s
}

// Name returns the name of the [Argument].
func (a Argument) Name() string {
	return a.name
}

// Value returns the value of the [Argument].
func (a Argument) Value() string {
	return a.value
}

// UniqueName returns if the name of the [Argument] must be unique in a list.
func (a Argument) UniqueName() bool {
	return !a.nonUniqueName
}

// Equal compares the [Argument]s.
//
// If the name is marked unique, only names are compared. Otherwise name and
// value are compared.
func (a Argument) Equal(other Argument) bool {
	if a.name != other.name {
		return false
	}

	if a.nonUniqueName {
		return a.value == other.value
	}

	return true
}

// UniqueArg returns a new [Argument] with the given name that is marked as
// unique and so can be used only once.
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns a new [Argument] with the given name that is not
// unique and so can be used multiple times.
func RepeatableArg(name string, value ...string) Argument {
	return Argument{
		name:          name,
		value:         strings.Join(value, ","),
		nonUniqueName: true,
	}
}

// ParseArgs parses raw QEMU command line options as given in a machine
// definition.
//
// An option and its value may be given as separate elements or as one element
// separated by the first space, so both ["-m", "4G"] and ["-m 4G"] are valid.
// Options listed in uniqueArgNames are marked unique.
func ParseArgs(raw []string) ([]Argument, error) {
	args := make([]Argument, 0, len(raw))
	expectValue := false

	for _, elem := range raw {
		elem = strings.TrimSpace(elem)

		if !strings.HasPrefix(elem, "-") {
			if !expectValue {
				return nil, &ArgumentError{"value without option: " + elem}
			}

			args[len(args)-1].value = elem
			expectValue = false

			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(elem, "-"), " ")
		if name == "" {
			return nil, &ArgumentError{"empty option name"}
		}

		arg := RepeatableArg(name, strings.TrimSpace(value))
		if slices.Contains(uniqueArgNames, name) {
			arg.nonUniqueName = false
		}

		args = append(args, arg)
		expectValue = !hasValue
	}

	return args, nil
}

// BuildArgumentStrings compiles the [Argument]s to into a slice of strings
// which can be used with [exec.Command].
//
// It returns an error if any name uniqueness constraints of any [Argument] is
// violated.
func BuildArgumentStrings(args []Argument) ([]string, error) {
	argString := make([]string, 0, len(args))

	for idx, arg := range args {
		if i := slices.IndexFunc(args[:idx], arg.Equal); i != -1 {
			return nil, fmt.Errorf(
				"%w: %s, %s",
				ErrArgumentCollision,
				arg.String(),
				args[i].String(),
			)
		}

		argString = append(argString, "-"+arg.name)

		if arg.value != "" {
			argString = append(argString, arg.value)
		}
	}

	return argString, nil
}
