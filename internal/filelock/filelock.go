// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package filelock provides exclusive advisory file locks.
package filelock

import "github.com/zeebo/errs"

// Error is the error class for lock failures.
var Error = errs.Class("filelock")
