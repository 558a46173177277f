// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package ledger

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one ledger line parsed back for the export side.
type Entry struct {
	Seq     int64
	Ts      int64
	Lat     float64
	Lon     float64
	Channel string
	Net     string
	Battery *int64
	Flags   *int64
}

// ReadWindow reads every ledger file in the device directory whose UTC date
// overlaps [fromTs, toTs] and returns the entries inside the exact window,
// in file order. Missing or unreadable files are skipped; short or mangled
// lines are skipped individually. Entries with out-of-range decimal
// coordinates are dropped.
func ReadWindow(ctx context.Context, dir string, fromTs, toTs int64) (entries []Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	start := time.Unix(fromTs, 0).UTC().Truncate(24 * time.Hour)
	end := time.Unix(toTs, 0).UTC().Truncate(24 * time.Hour)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		path := filepath.Join(dir, day.Format("2006-01-02")+".csv")
		fileEntries, err := readFile(path, fromTs, toTs)
		if err != nil {
			continue
		}
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

func readFile(path string, fromTs, toTs int64) ([]Entry, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = fh.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(fh)
	first := true
	for scanner.Scan() {
		if first {
			// header
			first = false
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cols := strings.Split(line, ",")
		if len(cols) < 8 {
			continue
		}

		e := Entry{
			Seq:     lenientInt(cols[0]),
			Ts:      lenientInt(cols[2]),
			Lat:     lenientFloat(cols[5]),
			Lon:     lenientFloat(cols[6]),
			Channel: cols[7],
		}
		if len(cols) > 8 {
			e.Net = cols[8]
		}
		if len(cols) > 9 && cols[9] != "" {
			v := lenientInt(cols[9])
			e.Battery = &v
		}
		if len(cols) > 10 && cols[10] != "" {
			v := lenientInt(cols[10])
			e.Flags = &v
		}

		if e.Ts < fromTs || e.Ts > toTs {
			continue
		}
		if e.Lat < -90 || e.Lat > 90 || e.Lon < -180 || e.Lon > 180 {
			continue
		}
		entries = append(entries, e)
	}
	return entries, Error.Wrap(scanner.Err())
}

// lenientInt parses the leading integer of a column, tolerating trailing
// junk the way the historical reader did.
func lenientInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func lenientFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
