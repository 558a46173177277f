// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sweep deletes ledger files in the device directory whose UTC calendar date
// is older than the retention horizon at the given instant. Deletion is best
// effort: a failure is logged and the file is retried on a later sweep. Files
// that are not date-named ledgers are left alone.
func Sweep(log *zap.Logger, dir string, now time.Time, retentionDays int) (removed int) {
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		name := entry.Name()
		base, ok := strings.CutSuffix(name, ".csv")
		if !ok {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", base, time.UTC)
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			log.Warn("unable to remove expired ledger file",
				zap.String("file", name), zap.Error(err))
			continue
		}
		log.Debug("removed expired ledger file", zap.String("file", name))
		removed++
	}
	return removed
}
