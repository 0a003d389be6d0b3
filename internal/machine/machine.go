// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package machine provides VM definitions.
//
// A [Machine] lives in one YAML file per VM in a machine directory. Besides
// raw QEMU options, it lists the pools devices are claimed from on start.
package machine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"github.com/aibor/ezkvm/internal/lock"
	"github.com/aibor/ezkvm/internal/sys"
	"gopkg.in/yaml.v3"
)

// FileExtension is the extension of machine files.
const FileExtension = ".yaml"

var (
	// ErrNotFound is returned if no machine file exists for a name.
	ErrNotFound = errors.New("machine not found")

	// ErrEmptyFile is returned if a machine file has no content.
	ErrEmptyFile = errors.New("empty file")

	// ErrNameMismatch is returned if the name in a machine file does not
	// match the file name.
	ErrNameMismatch = errors.New("machine name does not match file name")

	// ErrNoPool is returned if a device does not name a pool.
	ErrNoPool = errors.New("device without pool")
)

// Device is a device claimed from a pool on start.
type Device struct {
	// Pool the device is claimed from.
	Pool string `yaml:"pool"`
	// MAC is assigned to SR-IOV virtual functions before start.
	MAC string `yaml:"mac,omitempty"`
}

// HardwareAddr returns the parsed MAC. It is nil if no MAC is set.
func (d Device) HardwareAddr() (net.HardwareAddr, error) {
	if d.MAC == "" {
		return nil, nil
	}

	mac, err := net.ParseMAC(d.MAC)
	if err != nil {
		return nil, fmt.Errorf("device of pool %s: %w", d.Pool, err)
	}

	return mac, nil
}

// Machine is the definition of a VM.
type Machine struct {
	Name string `yaml:"name"`
	// QEMU binary. Empty for the configured default.
	QEMU string `yaml:"qemu,omitempty"`
	// Machine type and options. Empty for the default.
	Machine string `yaml:"machine,omitempty"`
	// Args are raw QEMU options.
	Args []string `yaml:"args,omitempty"`
	// Devices are claimed in the given order.
	Devices []Device `yaml:"devices,omitempty"`
}

// Validate checks the devices of the machine.
func (m *Machine) Validate() error {
	for idx, dev := range m.Devices {
		if dev.Pool == "" {
			return fmt.Errorf("device %d: %w", idx, ErrNoPool)
		}

		_, err := dev.HardwareAddr()
		if err != nil {
			return err
		}
	}

	return nil
}

// Path returns the path of the machine file for the given name.
func Path(dir, name string) string {
	return filepath.Join(dir, name+FileExtension)
}

// Parse parses machine file content. The given name is the file stem the
// content was read from. If the content has a name, it must match.
func Parse(name string, data []byte) (*Machine, error) {
	var machine Machine

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(&machine)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}

		return nil, fmt.Errorf("decode: %w", err)
	}

	switch machine.Name {
	case "":
		machine.Name = name
	case name:
	default:
		return nil, fmt.Errorf("%w: %q != %q", ErrNameMismatch, machine.Name, name)
	}

	err = machine.Validate()
	if err != nil {
		return nil, err
	}

	return &machine, nil
}

// Load reads the machine with the given name from the given directory.
func Load(dir, name string) (*Machine, error) {
	// Machine names become lock names, so they share the constraints.
	err := lock.ValidateName(name)
	if err != nil {
		return nil, err
	}

	path := Path(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		return nil, fmt.Errorf("read machine %s: %w", name, err)
	}

	machine, err := Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return machine, nil
}

// List returns the names of all machines in the given directory, sorted.
func List(dir string) ([]string, error) {
	names, err := sys.FileStems(dir, FileExtension)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}

	return names, nil
}
