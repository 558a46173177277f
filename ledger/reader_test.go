// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldtrack/tracklog/gps"
)

func TestReadWindowFiltersAndParses(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w := NewWriter(zaptest.NewLogger(t))

	fixes := []gps.Fix{
		{Seq: 1, Ts: 1700000000, LatE7: 407128000, LonE7: -740060000, Channel: gps.ChannelWifi, Net: "home", Battery: 55, HasBattery: true},
		{Seq: 2, Ts: 1700000060, LatE7: 407128100, LonE7: -740060100, Channel: gps.ChannelWifi, Net: "home"},
		// next UTC day
		{Seq: 3, Ts: 1700006400, LatE7: 407128200, LonE7: -740060200, Channel: gps.ChannelLora, Net: "ttn", Flags: 3, HasFlags: true},
	}
	for _, f := range fixes {
		require.NoError(t, w.Append(ctx, dir, f))
	}

	// window spans both days but excludes the first fix
	entries, err := ReadWindow(ctx, dir, 1700000060, 1700006400)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.EqualValues(t, 2, entries[0].Seq)
	require.EqualValues(t, 1700000060, entries[0].Ts)
	require.InDelta(t, 40.71281, entries[0].Lat, 1e-6)
	require.InDelta(t, -74.00601, entries[0].Lon, 1e-6)
	require.Nil(t, entries[0].Battery)
	require.Nil(t, entries[0].Flags)

	require.EqualValues(t, 3, entries[1].Seq)
	require.Equal(t, gps.ChannelLora, entries[1].Channel)
	require.Equal(t, "ttn", entries[1].Net)
	require.NotNil(t, entries[1].Flags)
	require.EqualValues(t, 3, *entries[1].Flags)
	require.Nil(t, entries[1].Battery)
}

func TestReadWindowToleratesMissingFiles(t *testing.T) {
	ctx := context.Background()
	entries, err := ReadWindow(ctx, t.TempDir(), 1700000000, 1700086400)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSweepRemovesOnlyExpiredFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w := NewWriter(zaptest.NewLogger(t))
	log := zaptest.NewLogger(t)

	now := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	old := now.Add(-8 * 24 * time.Hour)
	fresh := now.Add(-2 * 24 * time.Hour)
	require.NoError(t, w.Append(ctx, dir, gps.Fix{Ts: old.Unix(), LatE7: 1, LonE7: 1, Channel: gps.ChannelWifi, Net: "n"}))
	require.NoError(t, w.Append(ctx, dir, gps.Fix{Ts: fresh.Unix(), LatE7: 1, LonE7: 1, Channel: gps.ChannelWifi, Net: "n"}))

	removed := Sweep(log, dir, now, 7)
	require.Equal(t, 1, removed)

	require.NoFileExists(t, dir+"/"+Filename(old.Unix()))
	require.FileExists(t, dir+"/"+Filename(fresh.Unix()))

	// a second sweep is a no-op
	require.Equal(t, 0, Sweep(log, dir, now, 7))
}

func TestSweepIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	log := zaptest.NewLogger(t)

	for _, name := range []string{"recent_keys.txt", "last_ack_ts.txt", "notes.csv"} {
		require.NoError(t, writeTestFile(dir, name))
	}
	require.Equal(t, 0, Sweep(log, dir, time.Now().UTC(), 0))
	require.FileExists(t, dir+"/notes.csv")
}

func writeTestFile(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644)
}
