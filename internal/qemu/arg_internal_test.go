// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgumentEqual(t *testing.T) {
	tests := []struct {
		name  string
		a     Argument
		b     Argument
		equal bool
	}{
		{
			name:  "both empty",
			a:     Argument{},
			b:     Argument{},
			equal: true,
		},
		{
			name:  "one empty",
			a:     Argument{name: "t"},
			b:     Argument{},
			equal: false,
		},
		{
			name:  "same unique name",
			a:     Argument{name: "m", value: "4G"},
			b:     Argument{name: "m", value: "8G"},
			equal: true,
		},
		{
			name:  "same repeatable name",
			a:     Argument{name: "device", value: "a", nonUniqueName: true},
			b:     Argument{name: "device", value: "b", nonUniqueName: true},
			equal: false,
		},
		{
			name:  "same repeatable name and value",
			a:     Argument{name: "device", value: "a", nonUniqueName: true},
			b:     Argument{name: "device", value: "a", nonUniqueName: true},
			equal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestCommandSpecArguments(t *testing.T) {
	spec := CommandSpec{
		Executable: "qemu-system-x86_64",
		Name:       "vm1",
		Machine:    "q35,hpet=off",
		RunDir:     "/run/ezkvm",
		Devices:    []Argument{RepeatableArg("device", "vfio-pci", "host=01:00.0")},
		ExtraArgs:  []Argument{UniqueArg("m", "4G")},
	}

	expected := []Argument{
		UniqueArg("name", "vm1"),
		UniqueArg("machine", "q35,hpet=off"),
		UniqueArg("accel", "kvm"),
		UniqueArg("qmp", "unix:/run/ezkvm/vm1.qmp", "server=on", "wait=off"),
		UniqueArg("no-user-config"),
		RepeatableArg("device", "vfio-pci", "host=01:00.0"),
		UniqueArg("m", "4G"),
	}

	assert.Equal(t, expected, spec.arguments())

	spec.NoKVM = true
	assert.Contains(t, spec.arguments(), UniqueArg("accel", "tcg"))
}
