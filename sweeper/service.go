// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package sweeper implements expired ledger file deletion across devices.
package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/fieldtrack/tracklog/internal/sync2"
	"github.com/fieldtrack/tracklog/ledger"
)

var mon = monkit.Package()

// Error is the error class for sweeper failures.
var Error = errs.Class("sweeper")

// Config defines parameters for the retention sweeper.
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		RetentionDays: 7,
	}
}

// Service deletes ledger files older than the retention window.
//
// architecture: Chore
type Service struct {
	log     *zap.Logger
	dataDir string
	config  Config

	Loop *sync2.Cycle

	// Now supplies the current instant; tests override it.
	Now func() time.Time
}

// NewService creates a new sweeper service.
func NewService(log *zap.Logger, dataDir string, config Config) *Service {
	return &Service{
		log:     log,
		dataDir: dataDir,
		config:  config,
		Loop:    sync2.NewCycle(config.Interval),
		Now:     time.Now,
	}
}

// Run runs the sweeper service.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return service.Loop.Run(ctx, func(ctx context.Context) error {
		_, err := service.Sweep(ctx, service.Now())
		if err != nil {
			service.log.Error("error during retention sweep", zap.Error(err))
		}
		return nil
	})
}

// Close stops the sweeper service.
func (service *Service) Close() error {
	service.Loop.Stop()
	return nil
}

// Sweep walks every device directory and removes files that have aged out.
func (service *Service) Sweep(ctx context.Context, now time.Time) (removed int, err error) {
	defer mon.Task()(&ctx)(&err)

	entries, err := os.ReadDir(service.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, Error.Wrap(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(service.dataDir, entry.Name())
		removed += ledger.Sweep(service.log, dir, now, service.config.RetentionDays)
	}

	if removed > 0 {
		service.log.Info("sweep", zap.Int("removed", removed))
	}
	return removed, nil
}
