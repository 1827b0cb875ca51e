// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces small state files so readers never see a
// partial write. The data goes to a temporary file in the same
// directory, is fsynced, and is renamed over the target. The parent
// directory is synced afterwards so the rename survives power loss.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data. The parent directory must
// exist. The temporary file is removed on any failure.
func Write(path string, data []byte, mode os.FileMode) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file for %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file for %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// ReadOptional reads path. A missing file returns nil data and a nil
// error.
func ReadOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
