// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package sync2 provides synchronization helpers for background chores.
package sync2

import (
	"context"
	"sync"
	"time"
)

// Cycle implements a controllable recurring event. The callback runs once
// immediately and then on every interval tick until the context is canceled,
// the cycle is stopped, or the callback returns an error.
type Cycle struct {
	interval time.Duration

	init    sync.Once
	ticker  *time.Ticker
	control chan interface{}
	quit    chan struct{}
}

type cycleTrigger struct {
	done chan struct{}
}

// NewCycle creates a new cycle with the specified interval.
func NewCycle(interval time.Duration) *Cycle {
	return &Cycle{interval: interval}
}

// initialize sets up the channels shared between the loop and its controls.
func (cycle *Cycle) initialize() {
	cycle.init.Do(func() {
		cycle.quit = make(chan struct{})
		cycle.control = make(chan interface{})
	})
}

// sendControl sends a control message to the running loop.
func (cycle *Cycle) sendControl(message interface{}) {
	cycle.initialize()
	select {
	case cycle.control <- message:
	case <-cycle.quit:
	}
}

// Run runs the specified function on the cycle's schedule.
func (cycle *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	cycle.initialize()
	defer close(cycle.quit)

	cycle.ticker = time.NewTicker(cycle.interval)
	defer cycle.ticker.Stop()

	if err := fn(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-cycle.ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}

		case message := <-cycle.control:
			switch message := message.(type) {
			case nil:
				return nil

			case cycleTrigger:
				if err := fn(ctx); err != nil {
					return err
				}
				if message.done != nil {
					message.done <- struct{}{}
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops the cycle permanently.
func (cycle *Cycle) Stop() {
	cycle.sendControl(nil)
}

// TriggerWait runs the callback out of schedule and waits for it to complete.
func (cycle *Cycle) TriggerWait() {
	done := make(chan struct{})
	cycle.sendControl(cycleTrigger{done})
	select {
	case <-done:
	case <-cycle.quit:
	}
}
