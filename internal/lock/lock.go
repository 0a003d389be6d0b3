// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package lock provides the persisted claim record of a running VM.
//
// A [Lock] lives in one YAML file per VM, named after the VM, in a lock
// directory. It is written once the VM is confirmed running and deleted when
// the VM is stopped.
package lock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aibor/ezkvm/internal/sys"
	"gopkg.in/yaml.v3"
)

// FileExtension is the extension of lock files.
const FileExtension = ".yaml"

// Lock is the claim record of one VM.
type Lock struct {
	// Name of the VM. Unique while the VM runs.
	Name string `yaml:"name"`
	// PID of the VM process. Only informational.
	PID int `yaml:"pid"`
	// Resources are the claimed resource IDs in claim order.
	Resources []string `yaml:"resources"`
	// Session identifies the invocation that wrote the lock.
	Session string `yaml:"session,omitempty"`
	// Created is the time the lock was written.
	Created time.Time `yaml:"created,omitempty"`
}

// Add appends a claimed resource ID.
func (l *Lock) Add(id string) {
	l.Resources = append(l.Resources, id)
}

// Holds reports whether the lock references the given resource ID.
func (l *Lock) Holds(id string) bool {
	return slices.Contains(l.Resources, id)
}

// ValidateName checks the name can be used as lock file stem.
func ValidateName(name string) error {
	switch {
	case name == "",
		strings.HasPrefix(name, "."),
		strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	default:
		return nil
	}
}

// Path returns the path of the lock file for the given name.
func Path(dir, name string) string {
	return filepath.Join(dir, name+FileExtension)
}

// Parse parses lock file content. The given name is the file stem the content
// was read from. If the content has a name, it must match. An empty name is
// set to the file stem.
func Parse(name string, data []byte) (Lock, error) {
	var lock Lock

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(&lock)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Lock{}, ErrEmptyFile
		}

		return Lock{}, fmt.Errorf("decode: %w", err)
	}

	switch lock.Name {
	case "":
		lock.Name = name
	case name:
	default:
		return Lock{}, fmt.Errorf("%w: %q != %q", ErrNameMismatch, lock.Name, name)
	}

	if lock.Resources == nil {
		lock.Resources = []string{}
	}

	return lock, nil
}

// Read reads the lock with the given name from the given directory.
//
// It returns [ErrNotFound] if there is no lock file and a [ParseError] if the
// file is malformed.
func Read(dir, name string) (Lock, error) {
	err := ValidateName(name)
	if err != nil {
		return Lock{}, err
	}

	path := Path(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Lock{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		return Lock{}, fmt.Errorf("read lock %s: %w", name, err)
	}

	lock, err := Parse(name, data)
	if err != nil {
		return Lock{}, &ParseError{Path: path, Err: err}
	}

	return lock, nil
}

// Write writes the lock to the given directory, replacing any existing lock
// with the same name.
//
// The content is written to a hidden temporary file first and then renamed,
// so readers never see a partial lock.
func (l *Lock) Write(dir string) error {
	err := ValidateName(l.Name)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("%w %s: marshal: %w", ErrWrite, l.Name, err)
	}

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, l.Name, err)
	}

	tmp, err := os.CreateTemp(dir, "."+l.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, l.Name, err)
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Chmod(tmp.Name(), 0o644)
	}

	if err == nil {
		err = os.Rename(tmp.Name(), Path(dir, l.Name))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w %s: %w", ErrWrite, l.Name, err)
	}

	return nil
}

// Delete removes the lock file with the given name.
//
// It returns [ErrNotFound] if there is no such file.
func Delete(dir, name string) error {
	err := ValidateName(name)
	if err != nil {
		return err
	}

	err = os.Remove(Path(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		return fmt.Errorf("%w %s: %w", ErrDelete, name, err)
	}

	return nil
}

// List returns the names of all locks in the given directory, sorted.
func List(dir string) ([]string, error) {
	names, err := sys.FileStems(dir, FileExtension)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}

	return names, nil
}
