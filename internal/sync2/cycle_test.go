// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
)

func TestCycleRunsImmediatelyAndOnTrigger(t *testing.T) {
	var count int64
	cycle := NewCycle(time.Hour)

	done := make(chan error, 1)
	go func() {
		done <- cycle.Run(context.Background(), func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}()

	cycle.TriggerWait()
	require.GreaterOrEqual(t, atomic.LoadInt64(&count), int64(2))

	cycle.Stop()
	require.NoError(t, <-done)
}

func TestCycleStopsOnError(t *testing.T) {
	boom := errs.New("boom")
	cycle := NewCycle(time.Hour)

	err := cycle.Run(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestCycleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycle := NewCycle(time.Hour)

	done := make(chan error, 1)
	go func() {
		done <- cycle.Run(ctx, func(ctx context.Context) error { return nil })
	}()

	cycle.TriggerWait()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
