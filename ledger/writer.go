// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package ledger implements the per-device, per-day append-only fix files.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/fieldtrack/tracklog/gps"
	"github.com/fieldtrack/tracklog/internal/filelock"
)

var mon = monkit.Package()

// Error is the error class for ledger failures.
var Error = errs.Class("ledger")

// Header is the first line of every ledger file. The export side depends on
// this exact column order.
const Header = "seq,ts_iso,ts_epoch,latE7,lonE7,lat,lon,ch,net,bat,flags"

// isoFormat renders UTC instants with an explicit +00:00 offset.
const isoFormat = "2006-01-02T15:04:05+00:00"

// Filename returns the ledger file name for the UTC calendar date of ts.
func Filename(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02") + ".csv"
}

// Writer appends accepted fixes to daily ledger files.
type Writer struct {
	log *zap.Logger
}

// NewWriter creates a ledger writer.
func NewWriter(log *zap.Logger) *Writer {
	return &Writer{log: log}
}

// Append writes one fix as a line to the day file for the fix's timestamp
// inside the given device directory, creating the file and header when the
// file is empty. The header check and the append happen under an exclusive
// lock on the file, so two concurrent writers landing on the same date
// cannot both write a header. The write only counts as successful when a
// positive number of bytes went out.
func (w *Writer) Append(ctx context.Context, dir string, f gps.Fix) (err error) {
	defer mon.Task()(&ctx)(&err)

	path := filepath.Join(dir, Filename(f.Ts))
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(filelock.Unlock(fh)), Error.Wrap(fh.Close()))
	}()

	if err := filelock.Lock(fh); err != nil {
		return Error.Wrap(err)
	}

	st, err := fh.Stat()
	if err != nil {
		return Error.Wrap(err)
	}
	if st.Size() == 0 {
		n, err := fh.WriteString(Header + "\n")
		if err != nil {
			return Error.Wrap(err)
		}
		if n == 0 {
			return Error.New("zero-byte header write to %s", path)
		}
	}

	n, err := fh.WriteString(renderLine(f))
	if err != nil {
		return Error.Wrap(err)
	}
	if n == 0 {
		return Error.New("zero-byte write to %s", path)
	}
	return Error.Wrap(fh.Sync())
}

func renderLine(f gps.Fix) string {
	bat := ""
	if f.HasBattery {
		bat = strconv.FormatInt(f.Battery, 10)
	}
	flags := ""
	if f.HasFlags {
		flags = strconv.FormatInt(f.Flags, 10)
	}
	return fmt.Sprintf("%d,%s,%d,%d,%d,%s,%s,%s,%s,%s,%s\n",
		f.Seq,
		time.Unix(f.Ts, 0).UTC().Format(isoFormat),
		f.Ts,
		f.LatE7,
		f.LonE7,
		gps.FormatCoord(f.LatE7),
		gps.FormatCoord(f.LonE7),
		f.Channel,
		f.Net,
		bat,
		flags,
	)
}
