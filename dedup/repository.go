// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package dedup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/errs"

	"github.com/fieldtrack/tracklog/internal/filelock"
)

// KeyFileName is the persisted recent-key file inside a device directory.
const KeyFileName = "recent_keys.txt"

// Repository owns the persisted form of a device's recent-key set. An open
// repository holds exclusive ownership for the whole request lifetime: Load
// at the start, Persist at the end, Close to release. No concurrent request
// for the same device can observe or mutate the set in between, which is
// what makes a write at-most-once-accepted per key across concurrent
// retries.
type Repository interface {
	Load(ctx context.Context) ([]string, error)
	Persist(ctx context.Context, keys []string) error
	Close() error
}

// FileRepository persists the key set as a newline-delimited file and holds
// an exclusive advisory lock on it from Open until Close.
type FileRepository struct {
	fh *os.File
}

// OpenFileRepository opens (creating if needed) and locks the recent-key
// file inside the given device directory, blocking until the lock is
// available.
func OpenFileRepository(ctx context.Context, dir string) (*FileRepository, error) {
	fh, err := os.OpenFile(filepath.Join(dir, KeyFileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := filelock.Lock(fh); err != nil {
		return nil, errs.Combine(Error.Wrap(err), fh.Close())
	}
	return &FileRepository{fh: fh}, nil
}

// Load reads the persisted keys, one per line.
func (r *FileRepository) Load(ctx context.Context) ([]string, error) {
	if _, err := r.fh.Seek(0, io.SeekStart); err != nil {
		return nil, Error.Wrap(err)
	}
	data, err := io.ReadAll(r.fh)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(ln)
	}
	return lines, nil
}

// Persist rewrites the file from the given keys, still under the lock taken
// at open.
func (r *FileRepository) Persist(ctx context.Context, keys []string) error {
	if err := r.fh.Truncate(0); err != nil {
		return Error.Wrap(err)
	}
	if _, err := r.fh.Seek(0, io.SeekStart); err != nil {
		return Error.Wrap(err)
	}
	if len(keys) > 0 {
		if _, err := r.fh.WriteString(strings.Join(keys, "\n") + "\n"); err != nil {
			return Error.Wrap(err)
		}
	}
	return Error.Wrap(r.fh.Sync())
}

// Close releases the lock and closes the file.
func (r *FileRepository) Close() error {
	return errs.Combine(Error.Wrap(filelock.Unlock(r.fh)), Error.Wrap(r.fh.Close()))
}
