// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package dedup implements the bounded recent-key set used to make ingestion
// idempotent across retries.
package dedup

import "github.com/zeebo/errs"

// Error is the error class for dedup state failures. Failures here are fatal
// for the whole request: without the key set we cannot promise idempotence.
var Error = errs.Class("dedup")

// Store is an ordered, duplicate-free set of recently seen idempotency keys,
// capped at a fixed capacity with oldest-first eviction. It is a capacity
// bound, not a time bound: devices resend the same batch on transport
// failure, and the key space inside the retention horizon is small enough
// that a capped FIFO approximates a time-windowed set.
//
// The store itself is pure in-memory state; a Repository supplies and
// receives the persisted form.
type Store struct {
	max int

	persisted map[string]struct{}
	order     []string
	request   map[string]struct{}
}

// NewStore creates a store with the given capacity.
func NewStore(max int) *Store {
	return &Store{
		max:       max,
		persisted: make(map[string]struct{}),
		request:   make(map[string]struct{}),
	}
}

// Load replaces the persisted set with the given lines. Only the newest max
// lines are considered, so the set stays bounded even if the backing file
// grew unexpectedly. Blank lines and repeated keys are dropped, keeping the
// first occurrence.
func (s *Store) Load(lines []string) {
	s.persisted = make(map[string]struct{})
	s.order = s.order[:0]

	if len(lines) > s.max {
		lines = lines[len(lines)-s.max:]
	}
	for _, ln := range lines {
		if ln == "" {
			continue
		}
		if _, ok := s.persisted[ln]; ok {
			continue
		}
		s.persisted[ln] = struct{}{}
		s.order = append(s.order, ln)
	}
}

// IsDuplicate reports whether the key was already seen, either in the
// persisted set or earlier in the current request.
func (s *Store) IsDuplicate(key string) bool {
	if _, ok := s.request[key]; ok {
		return true
	}
	_, ok := s.persisted[key]
	return ok
}

// NoteRequest marks a key as seen within the current request without
// touching the persisted set. Duplicates later in the same batch are caught
// even when the first occurrence never commits.
func (s *Store) NoteRequest(key string) {
	s.request[key] = struct{}{}
}

// Commit appends a key to the persisted set, evicting oldest keys while the
// set exceeds capacity. Committing a key already present is a no-op.
func (s *Store) Commit(key string) {
	if _, ok := s.persisted[key]; ok {
		return
	}
	s.persisted[key] = struct{}{}
	s.order = append(s.order, key)
	for len(s.order) > s.max {
		old := s.order[0]
		s.order = s.order[1:]
		delete(s.persisted, old)
	}
}

// Keys returns the persisted keys, oldest first.
func (s *Store) Keys() []string {
	return s.order
}

// Len returns the number of persisted keys.
func (s *Store) Len() int {
	return len(s.order)
}
