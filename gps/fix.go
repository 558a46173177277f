// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package gps holds the domain types for GPS fix records.
package gps

import (
	"fmt"
	"strings"
)

// Channel identifies the transport a fix arrived over.
const (
	ChannelWifi = "wifi"
	ChannelLora = "lora"
)

// Coordinate bounds in fixed-point degrees (degrees × 1e7).
const (
	MaxLatE7 = 900000000
	MaxLonE7 = 1800000000
)

// Fix is one validated GPS observation from a device.
//
// Battery and Flags are optional on the wire; HasBattery/HasFlags record
// whether they were present, so the ledger can render absent values as empty
// columns rather than zeroes.
type Fix struct {
	Seq     int64
	Ts      int64 // UTC epoch seconds
	LatE7   int64 // degrees × 1e7
	LonE7   int64 // degrees × 1e7
	Channel string
	Net     string

	Battery    int64
	HasBattery bool
	Flags      int64
	HasFlags   bool
}

// Key returns the idempotency key for the fix. It is derived only from the
// physical observation (timestamp and coordinates); seq, channel and net are
// transport metadata and deliberately excluded so that retries over a
// different path still collapse to the same key.
func (f Fix) Key() string {
	return fmt.Sprintf("%d,%d,%d", f.Ts, f.LatE7, f.LonE7)
}

// FormatCoord renders a fixed-point coordinate as decimal degrees with seven
// fraction digits. It is integer arithmetic throughout so the output is exact
// and sign-correct even for magnitudes below 1e7 (where an integer divide
// would lose the sign).
func FormatCoord(e7 int64) string {
	sign := ""
	if e7 < 0 {
		sign = "-"
		e7 = -e7
	}
	return fmt.Sprintf("%s%d.%07d", sign, e7/10000000, e7%10000000)
}

// SanitizeDeviceID strips a raw device identifier down to the characters
// allowed in a storage directory name. An identifier with nothing left maps
// to "default".
func SanitizeDeviceID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
