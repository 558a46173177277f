// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package export serves a bounded time window of a device's ledger history
// as a GeoJSON route.
package export

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/fieldtrack/tracklog/gps"
	"github.com/fieldtrack/tracklog/ledger"
)

var mon = monkit.Package()

var (
	// Error is the error class for export failures.
	Error = errs.Class("export")
	// ErrBadWindow marks an unusable time window.
	ErrBadWindow = errs.Class("invalid time window")
	// ErrUnknownDevice marks a device with no stored history.
	ErrUnknownDevice = errs.Class("unknown device")
)

// Config holds the export parameters.
type Config struct {
	DataDir  string
	MaxHours int // window length cap
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{DataDir: "data", MaxHours: 168}
}

// Request describes one export query. BeginTs/EndTs select an absolute
// window when both are present; otherwise Hours anchors a relative window
// at the current instant.
type Request struct {
	Device        string
	BeginTs       *int64
	EndTs         *int64
	Hours         int
	IncludePoints bool
}

// Service reads ledger files and assembles GeoJSON.
type Service struct {
	log    *zap.Logger
	config Config

	// Now supplies the current instant; tests override it.
	Now func() time.Time
}

// NewService creates an export service.
func NewService(log *zap.Logger, config Config) *Service {
	return &Service{log: log, config: config, Now: time.Now}
}

// FeatureCollection is the GeoJSON document returned to the client.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Geometry holds a Point ([lon, lat]) or LineString ([[lon, lat], ...]).
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// GeoJSON resolves the request window, reads the overlapped ledger files and
// builds the feature collection. Coordinates are [lon, lat].
func (s *Service) GeoJSON(ctx context.Context, req Request) (_ *FeatureCollection, err error) {
	defer mon.Task()(&ctx)(&err)

	device := gps.SanitizeDeviceID(req.Device)
	now := s.Now()

	fromTs, toTs, absolute := resolveWindow(req, now, s.config.MaxHours)
	if toTs <= fromTs {
		return nil, ErrBadWindow.New("end must be greater than begin")
	}
	if toTs-fromTs > int64(s.config.MaxHours)*3600 {
		fromTs = toTs - int64(s.config.MaxHours)*3600
	}

	dir := filepath.Join(s.config.DataDir, device)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, ErrUnknownDevice.New("%s", device)
	}

	entries, err := ledger.ReadWindow(ctx, dir, fromTs, toTs)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	mode := "hours"
	if absolute {
		mode = "absolute"
	}
	return assemble(device, entries, fromTs, toTs, mode, req.IncludePoints), nil
}

func resolveWindow(req Request, now time.Time, maxHours int) (fromTs, toTs int64, absolute bool) {
	if req.BeginTs != nil && req.EndTs != nil {
		fromTs, toTs, absolute = *req.BeginTs, *req.EndTs, true
	} else {
		hours := req.Hours
		if hours <= 0 {
			hours = 24
		}
		if hours > maxHours {
			hours = maxHours
		}
		// small future skew for clock differences and in-flight data
		toTs = now.Unix() + 2*3600
		fromTs = now.Unix() - int64(hours)*3600
	}

	fromTs = max(fromTs, 0)
	toTs = max(toTs, 0)
	toTs = min(toTs, now.Unix())
	return fromTs, toTs, absolute
}

func assemble(device string, entries []ledger.Entry, fromTs, toTs int64, mode string, includePoints bool) *FeatureCollection {
	coords := make([][]float64, 0, len(entries))
	points := make([]Feature, 0)

	var prev *ledger.Entry
	for i := range entries {
		e := entries[i]
		coords = append(coords, []float64{e.Lon, e.Lat})

		if includePoints {
			props := map[string]interface{}{
				"seq": e.Seq,
				"ts":  e.Ts,
				"ch":  e.Channel,
				"net": e.Net,
			}
			if e.Battery != nil {
				props["bat"] = *e.Battery
			}
			if e.Flags != nil {
				props["flags"] = *e.Flags
			}
			if prev != nil && e.Ts > prev.Ts {
				meters := haversine(prev.Lat, prev.Lon, e.Lat, e.Lon)
				mps := meters / float64(e.Ts-prev.Ts)
				props["speed_mps"] = round2(mps)
				props["speed_kmh"] = round2(mps * 3.6)
			}
			points = append(points, Feature{
				Type:       "Feature",
				Geometry:   Geometry{Type: "Point", Coordinates: []float64{e.Lon, e.Lat}},
				Properties: props,
			})
		}
		prev = &entries[i]
	}

	fc := &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}

	routeProps := map[string]interface{}{
		"device":  device,
		"from_ts": fromTs,
		"to_ts":   toTs,
		"points":  len(coords),
		"mode":    mode,
	}
	switch {
	case len(coords) >= 2:
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "LineString", Coordinates: coords},
			Properties: routeProps,
		})
	case len(coords) == 1:
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "Point", Coordinates: coords[0]},
			Properties: routeProps,
		})
	}
	if includePoints {
		fc.Features = append(fc.Features, points...)
	}
	return fc
}

// haversine returns the great-circle distance between two points in meters.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
