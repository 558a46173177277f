// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

//go:build !unix

package filelock

import "os"

// Supported reports whether advisory locking works on this platform.
const Supported = false

// Lock is a no-op on platforms without flock support.
func Lock(fh *os.File) error { return nil }

// Unlock is a no-op on platforms without flock support.
func Unlock(fh *os.File) error { return nil }
