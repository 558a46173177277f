// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package ack persists per-device acknowledgment high-water marks.
package ack

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Error is the error class for ack persistence failures.
var Error = errs.Class("ack")

const (
	tsFile  = "last_ack_ts.txt"
	seqFile = "last_ack.txt" // legacy, advisory only
)

// Tracker reads and writes the acknowledgment files inside one device
// directory. The timestamp mark is the primary high-water mark; the sequence
// mark is kept for compatibility and never consulted for any decision.
//
// Writes are atomic (temp file, fsync, rename) so a reader never observes a
// partially written value. The tracker itself does no locking; callers
// serialize updates per device.
type Tracker struct {
	dir string
}

// NewTracker returns a tracker rooted at the given device directory.
func NewTracker(dir string) *Tracker {
	return &Tracker{dir: dir}
}

// Timestamp returns the persisted maximum accepted timestamp, or zero when
// the file is missing or does not hold a plain non-negative decimal.
func (t *Tracker) Timestamp() int64 {
	return readMark(filepath.Join(t.dir, tsFile))
}

// Seq returns the persisted legacy sequence mark, or zero when the file is
// missing or malformed.
func (t *Tracker) Seq() int64 {
	return readMark(filepath.Join(t.dir, seqFile))
}

// SetTimestamp durably records a new timestamp mark.
func (t *Tracker) SetTimestamp(ctx context.Context, v int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return writeMark(filepath.Join(t.dir, tsFile), v)
}

// SetSeq durably records a new legacy sequence mark.
func (t *Tracker) SetSeq(ctx context.Context, v int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return writeMark(filepath.Join(t.dir, seqFile), v)
}

func readMark(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	txt := strings.TrimSpace(string(data))
	if txt == "" {
		return 0
	}
	var v int64
	for _, r := range txt {
		if r < '0' || r > '9' {
			return 0
		}
		v = v*10 + int64(r-'0')
	}
	return v
}

func writeMark(path string, v int64) (err error) {
	tmp := path + ".tmp"

	fh, err := os.Create(tmp)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, fh.Close(), os.Remove(tmp))
		}
	}()

	if v < 0 {
		v = 0
	}
	if _, err := fh.WriteString(strconv.FormatInt(v, 10)); err != nil {
		return Error.Wrap(err)
	}
	if err := fh.Sync(); err != nil {
		return Error.Wrap(err)
	}
	if err := fh.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return Error.Wrap(err)
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}
