// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	if err := Write(path, []byte("first\n"), 0600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Write(path, []byte("second\n"), 0600); err != nil {
		t.Fatalf("Write over existing: %v", err)
	}

	data, err := ReadOptional(path)
	if err != nil {
		t.Fatalf("ReadOptional: %v", err)
	}
	if string(data) != "second\n" {
		t.Errorf("content = %q, want %q", data, "second\n")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 0600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestWriteMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state")
	if err := Write(path, []byte("x"), 0600); err == nil {
		t.Error("Write into a missing directory succeeded")
	}
}

func TestReadOptionalMissing(t *testing.T) {
	data, err := ReadOptional(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("ReadOptional: %v", err)
	}
	if data != nil {
		t.Errorf("data = %q, want nil", data)
	}
}
