// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

//go:build unix

package filelock

import (
	"os"
	"syscall"
)

// Supported reports whether advisory locking works on this platform.
const Supported = true

// Lock takes an exclusive advisory lock on the open file, blocking until it
// is available.
func Lock(fh *os.File) error {
	return Error.Wrap(syscall.Flock(int(fh.Fd()), syscall.LOCK_EX))
}

// Unlock releases the advisory lock on the open file.
func Unlock(fh *os.File) error {
	return Error.Wrap(syscall.Flock(int(fh.Fd()), syscall.LOCK_UN))
}
