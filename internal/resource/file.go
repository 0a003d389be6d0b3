// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/aibor/ezkvm/internal/sys"
	"gopkg.in/yaml.v3"
)

// FileExtension is the extension of pool definition files.
const FileExtension = ".yaml"

type poolFile struct {
	ID      string       `yaml:"id"`
	Devices []deviceFile `yaml:"devices"`
}

type deviceFile struct {
	ID            string            `yaml:"id"`
	Tags          []string          `yaml:"tags"`
	Type          Kind              `yaml:"type"`
	PCI           []string          `yaml:"pci"`
	Multifunction *bool             `yaml:"multifunction"`
	Parent        string            `yaml:"parent"`
	VF            *int              `yaml:"vf"`
	Properties    map[string]string `yaml:"properties"`
}

// kind returns the explicit type or infers it from the fields present.
func (d *deviceFile) kind() Kind {
	switch {
	case d.Type != "":
		return d.Type
	case d.Parent != "":
		return KindSRIOVVF
	case len(d.PCI) > 1, d.Multifunction != nil && *d.Multifunction:
		return KindPCIMultifunction
	case len(d.PCI) == 1:
		return KindPCI
	default:
		return KindOther
	}
}

func (d *deviceFile) payload() (Payload, error) {
	for _, addr := range d.PCI {
		err := ValidatePCIAddress(addr)
		if err != nil {
			return nil, err
		}
	}

	switch kind := d.kind(); kind {
	case KindPCI:
		if len(d.PCI) != 1 {
			return nil, fmt.Errorf("%w: %s needs exactly one pci address",
				ErrInvalidDescriptor, kind)
		}

		return PCIFunction{Address: d.PCI[0]}, nil
	case KindPCIMultifunction:
		if len(d.PCI) == 0 {
			return nil, fmt.Errorf("%w: %s needs pci addresses",
				ErrInvalidDescriptor, kind)
		}

		return PCIGroup{Addresses: slices.Clone(d.PCI)}, nil
	case KindSRIOVVF:
		switch {
		case len(d.PCI) != 1:
			return nil, fmt.Errorf("%w: %s needs exactly one pci address",
				ErrInvalidDescriptor, kind)
		case d.Parent == "":
			return nil, fmt.Errorf("%w: %s needs a parent interface",
				ErrInvalidDescriptor, kind)
		case d.VF == nil || *d.VF < 0:
			return nil, fmt.Errorf("%w: %s needs a vf index",
				ErrInvalidDescriptor, kind)
		}

		return VirtualFunction{
			Address: d.PCI[0],
			Parent:  d.Parent,
			Index:   *d.VF,
		}, nil
	case KindOther:
		return OtherDevice{Properties: maps.Clone(d.Properties)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Path returns the path of the definition file for the given pool.
func Path(dir, id string) string {
	return filepath.Join(dir, id+FileExtension)
}

// Parse parses a pool definition. The given ID is the file stem the content
// was read from. If the content declares an ID, it must match.
func Parse(id string, data []byte) (*Pool, error) {
	var file poolFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(&file)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}

		return nil, fmt.Errorf("decode: %w", err)
	}

	if file.ID != "" && file.ID != id {
		return nil, fmt.Errorf("%w: %q != %q", ErrPoolIDMismatch, file.ID, id)
	}

	descriptors := make([]Descriptor, 0, len(file.Devices))

	for idx, dev := range file.Devices {
		payload, err := dev.payload()
		if err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", idx, dev.ID, err)
		}

		descriptors = append(descriptors, Descriptor{
			ID:      dev.ID,
			Tags:    dev.Tags,
			Payload: payload,
		})
	}

	return NewPool(id, descriptors...)
}

// Load reads the definition of the pool with the given ID from the given
// directory.
//
// It returns [ErrPoolNotFound] if no file exists for the pool and a
// [ParseError] if the file is malformed.
func Load(dir, id string) (*Pool, error) {
	path := Path(dir, id)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
		}

		return nil, fmt.Errorf("read pool %s: %w", id, err)
	}

	pool, err := Parse(id, data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return pool, nil
}

// List returns the IDs of all pools defined in the given directory, sorted.
func List(dir string) ([]string, error) {
	ids, err := sys.FileStems(dir, FileExtension)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}

	return ids, nil
}
