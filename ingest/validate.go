// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package ingest

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/fieldtrack/tracklog/gps"
)

// epochMillisThreshold is far beyond any plausible seconds epoch for this
// domain (~year 2600); larger values are treated as milliseconds.
const epochMillisThreshold = 20000000000

// Rejection reasons for the request summary and logs.
type rejectReason string

const (
	rejectNone       rejectReason = ""
	rejectNonInteger rejectReason = "missing-or-non-integer-field"
	rejectTimestamp  rejectReason = "timestamp-out-of-range"
	rejectLatitude   rejectReason = "latitude-out-of-range"
	rejectLongitude  rejectReason = "longitude-out-of-range"
)

// validateRecord turns one raw candidate record into a Fix or a rejection
// reason. It is pure: the only inputs are the record, the instant "now" and
// the configured bounds.
func (s *Service) validateRecord(raw interface{}, now time.Time) (gps.Fix, rejectReason) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return gps.Fix{}, rejectNonInteger
	}

	var f gps.Fix

	if sentence, ok := m["nmea"].(string); ok && !hasRecordField(m) {
		ts, latE7, lonE7, ok := parseNMEA(sentence)
		if !ok {
			return gps.Fix{}, rejectNonInteger
		}
		f.Ts, f.LatE7, f.LonE7 = ts, latE7, lonE7
	} else {
		ts, ok := intLike(m["ts"])
		if !ok {
			return gps.Fix{}, rejectNonInteger
		}
		latE7, ok := intLike(m["latE7"])
		if !ok {
			return gps.Fix{}, rejectNonInteger
		}
		lonE7, ok := intLike(m["lonE7"])
		if !ok {
			return gps.Fix{}, rejectNonInteger
		}
		f.Ts = normalizeEpochSeconds(ts)
		f.LatE7, f.LonE7 = latE7, lonE7
	}

	if seq, ok := intLike(m["seq"]); ok {
		f.Seq = seq
	}

	f.Channel = gps.ChannelWifi
	if ch, ok := m["ch"].(string); ok && strings.EqualFold(ch, gps.ChannelLora) {
		f.Channel = gps.ChannelLora
	}

	f.Net = "unknown"
	switch net := m["net"].(type) {
	case string:
		f.Net = sanitizeNet(net)
	case json.Number:
		f.Net = net.String()
	}

	// optional fields never reject the record
	if bat, ok := intLike(m["bat"]); ok {
		f.Battery = min(max(bat, 0), 100)
		f.HasBattery = true
	}
	if flags, ok := intLike(m["flags"]); ok {
		f.Flags = flags & 0xFF
		f.HasFlags = true
	}

	switch {
	case f.Ts < 0 || f.Ts > now.Unix()+s.config.MaxFutureSkew:
		return gps.Fix{}, rejectTimestamp
	case f.Ts < s.config.MinTimestamp:
		return gps.Fix{}, rejectTimestamp
	case f.LatE7 < -gps.MaxLatE7 || f.LatE7 > gps.MaxLatE7:
		return gps.Fix{}, rejectLatitude
	case f.LonE7 < -gps.MaxLonE7 || f.LonE7 > gps.MaxLonE7:
		return gps.Fix{}, rejectLongitude
	}

	return f, rejectNone
}

// intLike coerces integers, integer-valued floats, and signed digit strings.
// Anything else is not an integer.
func intLike(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case string:
		return digitString(strings.TrimSpace(x))
	case int64:
		return x, true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func digitString(s string) (int64, bool) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	var v int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		v = v*10 + int64(r-'0')
	}
	if neg {
		v = -v
	}
	return v, true
}

// normalizeEpochSeconds converts millisecond epochs to seconds, rounded.
func normalizeEpochSeconds(ts int64) int64 {
	if ts > epochMillisThreshold {
		return (ts + 500) / 1000
	}
	return ts
}

// sanitizeNet keeps network names from breaking the CSV column layout the
// export side depends on.
func sanitizeNet(net string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '\n', '\r':
			return '_'
		}
		return r
	}, net)
}

// parseNMEA extracts a timestamped position from a raw RMC sentence. Only
// sentences with a valid fix are accepted.
func parseNMEA(raw string) (ts, latE7, lonE7 int64, ok bool) {
	sentence, err := nmea.Parse(strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, 0, false
	}
	rmc, isRMC := sentence.(nmea.RMC)
	if !isRMC || rmc.Validity != nmea.ValidRMC {
		return 0, 0, 0, false
	}
	if !rmc.Date.Valid || !rmc.Time.Valid {
		return 0, 0, 0, false
	}
	at := time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second, rmc.Time.Millisecond*int(time.Millisecond), time.UTC)
	return at.Unix(),
		int64(math.Round(rmc.Latitude * 1e7)),
		int64(math.Round(rmc.Longitude * 1e7)),
		true
}
