// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package ingest implements the GPS fix ingestion pipeline: normalization,
// validation, idempotent deduplication, ledger persistence and
// acknowledgment tracking.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/fieldtrack/tracklog/ack"
	"github.com/fieldtrack/tracklog/dedup"
	"github.com/fieldtrack/tracklog/gps"
	"github.com/fieldtrack/tracklog/ledger"
)

var mon = monkit.Package()

var (
	// Error is the error class for ingestion failures in shared state;
	// these abort the whole request.
	Error = errs.Class("ingest")
	// ErrMalformedInput marks requests that cannot be processed at all:
	// empty body, undecodable JSON, bad envelope shape.
	ErrMalformedInput = errs.Class("malformed input")
)

// Config holds the ingestion parameters. It is passed in at construction;
// there is no process-wide mutable state.
type Config struct {
	DataDir       string
	RetentionDays int
	RecentKeysMax int
	MaxFutureSkew int64 // seconds
	MinTimestamp  int64 // epoch seconds; rejects deep backfills
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:       "data",
		RetentionDays: 7,
		RecentKeysMax: 5000,
		MaxFutureSkew: 86400,
		MinTimestamp:  946684800, // 2000-01-01T00:00:00Z
	}
}

// Result is the per-request summary returned to the transport layer.
type Result struct {
	OK         bool   `json:"ok"`
	Device     string `json:"device"`
	Source     string `json:"source"`
	AckedTs    int64  `json:"ackedTs"`
	AckedSeq   int64  `json:"ackedSeq"` // legacy, advisory only
	Written    int    `json:"written"`
	SkippedDup int    `json:"skipped_dup"`
	SkippedBad int    `json:"skipped_bad"`
}

// Service processes ingestion requests. Safe for concurrent use; all
// cross-request coordination happens through per-device file locks.
type Service struct {
	log    *zap.Logger
	config Config
	writer *ledger.Writer

	// Now supplies the current instant; tests override it.
	Now func() time.Time
	// OpenRepository opens the per-device recent-key repository; tests
	// substitute an in-memory implementation.
	OpenRepository func(ctx context.Context, dir string) (dedup.Repository, error)
}

// NewService creates an ingestion service.
func NewService(log *zap.Logger, config Config) *Service {
	return &Service{
		log:    log,
		config: config,
		writer: ledger.NewWriter(log.Named("ledger")),
		Now:    time.Now,
		OpenRepository: func(ctx context.Context, dir string) (dedup.Repository, error) {
			return dedup.OpenFileRepository(ctx, dir)
		},
	}
}

// Process ingests one request body for the given device hint and returns the
// request summary. Failures local to one record never abort sibling records;
// failures in shared state (device directory, dedup repository) abort the
// whole request.
func (s *Service) Process(ctx context.Context, deviceHint string, body []byte) (_ *Result, err error) {
	defer mon.Task()(&ctx)(&err)

	b, err := normalize(body)
	if err != nil {
		return nil, err
	}

	device := gps.SanitizeDeviceID(deviceHint)
	if device == "default" && b.deviceHint != "" {
		device = gps.SanitizeDeviceID(b.deviceHint)
	}

	dir := filepath.Join(s.config.DataDir, device)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, Error.New("cannot create device dir: %+v", err)
	}

	now := s.Now()

	// housekeeping before any state is read
	ledger.Sweep(s.log, dir, now, s.config.RetentionDays)

	tracker := ack.NewTracker(dir)
	lastAckTs := tracker.Timestamp()
	lastAckSeq := tracker.Seq()

	// The repository lock is held for the whole read-modify-write span of
	// the request; this serializes ingestion per device and is what makes
	// replayed batches collapse instead of double-writing.
	repo, err := s.OpenRepository(ctx, dir)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(repo.Close()))
	}()

	lines, err := repo.Load(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	store := dedup.NewStore(s.config.RecentKeysMax)
	store.Load(lines)

	res := &Result{
		Device:  device,
		Source:  b.source,
		AckedTs: lastAckTs,
	}
	maxSeqSeen := lastAckSeq

	for _, raw := range b.records {
		f, reason := s.validateRecord(raw, now)
		if reason != rejectNone {
			res.SkippedBad++
			s.log.Debug("record rejected",
				zap.String("device", device), zap.String("reason", string(reason)))
			continue
		}

		key := f.Key()
		if store.IsDuplicate(key) {
			res.SkippedDup++
			continue
		}
		store.NoteRequest(key)

		if err := s.writer.Append(ctx, dir, f); err != nil {
			res.SkippedBad++
			s.log.Warn("ledger append failed",
				zap.String("device", device), zap.Error(err))
			continue
		}

		res.Written++
		store.Commit(key)

		if f.Ts > res.AckedTs {
			res.AckedTs = f.Ts
		}
		if f.Seq > maxSeqSeen {
			maxSeqSeen = f.Seq
		}
	}

	if err := repo.Persist(ctx, store.Keys()); err != nil {
		return nil, Error.Wrap(err)
	}

	// acks are advisory; a failed update is retried by a later request
	if res.AckedTs > lastAckTs {
		if err := tracker.SetTimestamp(ctx, res.AckedTs); err != nil {
			s.log.Warn("ack timestamp update failed", zap.String("device", device), zap.Error(err))
		}
	}
	if maxSeqSeen > lastAckSeq {
		if err := tracker.SetSeq(ctx, maxSeqSeen); err != nil {
			s.log.Warn("ack seq update failed", zap.String("device", device), zap.Error(err))
		}
	}
	res.AckedSeq = maxSeqSeen
	res.OK = true
	return res, nil
}
