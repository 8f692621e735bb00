// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package pidfile manages data/daemon.pid (spec.md §6): written at daemon
// startup, read by the daemon-status and stop-daemon CLI commands, and
// cleared on clean shutdown.
package pidfile

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Write records the current process id to path as decimal text.
//
// Parameters:
//   - path: destination file, typically data/daemon.pid.
//
// Returns:
//   - error: I/O error writing the file.
func Write(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Read returns the process id recorded at path.
//
// Parameters:
//   - path: pid file to read.
//
// Returns:
//   - int: decoded process id.
//   - error: returned when the file is missing or unparsable.
func Read(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "read pid file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, errors.Wrap(err, "parse pid file")
	}

	return pid, nil
}

// Remove deletes path, ignoring a missing file.
//
// Parameters:
//   - path: pid file to remove.
//
// Returns:
//   - error: only for an unexpected I/O error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
