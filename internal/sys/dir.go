// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStems returns the names of the regular files in the given directory that
// have the given extension, with the extension stripped.
//
// Hidden files are skipped. Symbolic links count if they resolve to a regular
// file. The result is in directory order as returned by
// [os.ReadDir], which sorts by file name.
func FileStems(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	stems := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !isRegular(dir, entry) {
			continue
		}

		stem, found := strings.CutSuffix(name, ext)
		if !found || stem == "" {
			continue
		}

		stems = append(stems, stem)
	}

	return stems, nil
}

func isRegular(dir string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}

	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}
