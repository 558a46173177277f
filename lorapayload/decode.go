// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package lorapayload decodes the fixed 13-byte uplink frame emitted by the
// LoRa trackers:
//
//	bytes 0-3   timestamp, uint32 big-endian, seconds since epoch
//	bytes 4-7   latitude, int32 big-endian, degrees × 1e7
//	bytes 8-11  longitude, int32 big-endian, degrees × 1e7
//	byte  12    battery percentage, uint8
package lorapayload

import (
	"encoding/binary"

	"github.com/zeebo/errs"
)

// Error is the error class for payload decoding.
var Error = errs.Class("lorapayload")

// FrameSize is the exact uplink frame length in bytes.
const FrameSize = 13

// Payload is the decoded field set of one uplink frame.
type Payload struct {
	Ts      uint32
	LatE7   int32
	LonE7   int32
	Battery uint8
}

// Decode decodes a raw uplink frame. Any length other than FrameSize is a
// decode error.
func Decode(b []byte) (Payload, error) {
	if len(b) != FrameSize {
		return Payload{}, Error.New("expected %d bytes, got %d", FrameSize, len(b))
	}
	return Payload{
		Ts:      binary.BigEndian.Uint32(b[0:4]),
		LatE7:   int32(binary.BigEndian.Uint32(b[4:8])),
		LonE7:   int32(binary.BigEndian.Uint32(b[8:12])),
		Battery: b[12],
	}, nil
}
