// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package dedup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreEvictsOldestFirst(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Commit(fmt.Sprintf("key-%d", i))
	}

	// after 3+2 inserts only the 2nd through last remain
	require.Equal(t, []string{"key-2", "key-3", "key-4"}, s.Keys())
	require.False(t, s.IsDuplicate("key-0"))
	require.False(t, s.IsDuplicate("key-1"))
	require.True(t, s.IsDuplicate("key-4"))
}

func TestStoreCommitIsIdempotent(t *testing.T) {
	s := NewStore(10)
	s.Commit("a")
	s.Commit("b")
	s.Commit("a")
	require.Equal(t, []string{"a", "b"}, s.Keys())
}

func TestStoreRequestSetShadowsBatchSiblings(t *testing.T) {
	s := NewStore(10)
	require.False(t, s.IsDuplicate("k"))
	s.NoteRequest("k")
	// nothing committed yet, but the same key later in the batch is a dup
	require.True(t, s.IsDuplicate("k"))
	require.Equal(t, 0, s.Len())
}

func TestStoreLoadKeepsNewestLines(t *testing.T) {
	s := NewStore(3)
	s.Load([]string{"a", "b", "c", "d", "e"})
	require.Equal(t, []string{"c", "d", "e"}, s.Keys())

	s.Load([]string{"", "x", "", "x", "y"})
	require.Equal(t, []string{"x", "y"}, s.Keys())
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := OpenFileRepository(ctx, dir)
	require.NoError(t, err)

	lines, err := repo.Load(ctx)
	require.NoError(t, err)
	s := NewStore(100)
	s.Load(lines)
	require.Equal(t, 0, s.Len())

	s.Commit("1700000000,407128000,-740060000")
	s.Commit("1700000060,407128100,-740060100")
	require.NoError(t, repo.Persist(ctx, s.Keys()))
	require.NoError(t, repo.Close())

	data, err := os.ReadFile(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	require.Equal(t,
		"1700000000,407128000,-740060000\n1700000060,407128100,-740060100\n",
		string(data))

	// reopen and observe the same set
	repo, err = OpenFileRepository(ctx, dir)
	require.NoError(t, err)
	defer func() { require.NoError(t, repo.Close()) }()

	lines, err = repo.Load(ctx)
	require.NoError(t, err)
	s = NewStore(100)
	s.Load(lines)
	require.Equal(t, 2, s.Len())
	require.True(t, s.IsDuplicate("1700000000,407128000,-740060000"))
}

func TestFileRepositoryPersistShrinksFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	long := strings.Repeat("averylongkeyline\n", 50)
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte(long), 0644))

	repo, err := OpenFileRepository(ctx, dir)
	require.NoError(t, err)
	defer func() { require.NoError(t, repo.Close()) }()

	require.NoError(t, repo.Persist(ctx, []string{"only"}))

	data, err := os.ReadFile(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	require.Equal(t, "only\n", string(data))
}
