// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package pidfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	pid, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestReadMissingFileErrors(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.pid")); err == nil {
		t.Fatal("expected error reading missing pid file")
	}
}

func TestRemoveMissingFileIsNoop(t *testing.T) {
	if err := Remove(filepath.Join(t.TempDir(), "missing.pid")); err != nil {
		t.Fatalf("expected no error removing missing pid file, got %v", err)
	}
}

func TestRemoveDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
}
