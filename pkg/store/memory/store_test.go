// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndList(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx := context.Background()
	e1, err := s.CreateWithLease(ctx, "/election/", "node-1", time.Minute)
	require.NoError(t, err)
	e2, err := s.CreateWithLease(ctx, "/election/", "node-2", time.Minute)
	require.NoError(t, err)
	assert.Greater(t, e2.Seq, e1.Seq)

	_, err = s.CreateWithLease(ctx, "/other/", "node-3", time.Minute)
	require.NoError(t, err)

	view, err := s.ListSorted(ctx, "/election/")
	require.NoError(t, err)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "node-1", view.Entries[0].Value)
	assert.Equal(t, "node-2", view.Entries[1].Value)
	assert.GreaterOrEqual(t, view.Revision, e2.Seq)
}

func TestDelete(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx := context.Background()
	e, err := s.CreateWithLease(ctx, "/election/", "node-1", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, s.Delete(ctx, e.Path))
	err = s.Delete(ctx, e.Path)
	assert.True(t, store.IsNotFound(err))

	view, err := s.ListSorted(ctx, "/election/")
	require.NoError(t, err)
	assert.Empty(t, view.Entries)
}

func TestLeaseExpiry(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx := context.Background()
	e, err := s.CreateWithLease(ctx, "/election/", "node-1", 50*time.Millisecond)
	require.NoError(t, err)

	// Refreshing pushes expiry out
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.RefreshLease(ctx, e.Lease, 50*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	view, err := s.ListSorted(ctx, "/election/")
	require.NoError(t, err)
	assert.Len(t, view.Entries, 1)

	// Without refreshes the entry is reclaimed
	assert.Eventually(t, func() bool {
		view, err := s.ListSorted(ctx, "/election/")
		return err == nil && len(view.Entries) == 0
	}, time.Second, 10*time.Millisecond)

	err = s.RefreshLease(ctx, e.Lease, time.Minute)
	assert.True(t, store.IsNotFound(err))
}

func TestWatch(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view, err := s.ListSorted(ctx, "/election/")
	require.NoError(t, err)

	ch, err := s.Watch(ctx, "/election/", view.Revision)
	require.NoError(t, err)

	e1, err := s.CreateWithLease(ctx, "/election/", "node-1", time.Minute)
	require.NoError(t, err)

	event := <-ch
	require.NoError(t, event.Err)
	assert.Equal(t, store.EventAdded, event.Type)
	assert.Equal(t, e1.Path, event.Entry.Path)
	assert.Equal(t, "node-1", event.Entry.Value)

	require.NoError(t, s.Delete(ctx, e1.Path))
	event = <-ch
	require.NoError(t, event.Err)
	assert.Equal(t, store.EventRemoved, event.Type)
	assert.Equal(t, e1.Path, event.Entry.Path)

	// Expiry is observed as a removal
	e2, err := s.CreateWithLease(ctx, "/election/", "node-2", time.Minute)
	require.NoError(t, err)
	event = <-ch
	assert.Equal(t, store.EventAdded, event.Type)

	s.ExpireLease(e2.Lease)
	event = <-ch
	require.NoError(t, event.Err)
	assert.Equal(t, store.EventRemoved, event.Type)
	assert.Equal(t, e2.Path, event.Entry.Path)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatchReplaysBacklog(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e1, err := s.CreateWithLease(ctx, "/election/", "node-1", time.Minute)
	require.NoError(t, err)
	view, err := s.ListSorted(ctx, "/election/")
	require.NoError(t, err)

	// Changes landing between the snapshot and watch registration must be
	// delivered; the stream starts after the snapshot revision.
	e2, err := s.CreateWithLease(ctx, "/election/", "node-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, e1.Path))

	ch, err := s.Watch(ctx, "/election/", view.Revision)
	require.NoError(t, err)

	event := <-ch
	require.NoError(t, event.Err)
	assert.Equal(t, store.EventAdded, event.Type)
	assert.Equal(t, e2.Path, event.Entry.Path)

	event = <-ch
	require.NoError(t, event.Err)
	assert.Equal(t, store.EventRemoved, event.Type)
	assert.Equal(t, e1.Path, event.Entry.Path)

	// Live events follow the replayed backlog
	e3, err := s.CreateWithLease(ctx, "/election/", "node-3", time.Minute)
	require.NoError(t, err)
	event = <-ch
	require.NoError(t, event.Err)
	assert.Equal(t, store.EventAdded, event.Type)
	assert.Equal(t, e3.Path, event.Entry.Path)
}

func TestStaleExpiryTimer(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx := context.Background()
	e, err := s.CreateWithLease(ctx, "/election/", "node-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.RefreshLease(ctx, e.Lease, time.Minute))

	// An expiry timer that fired before the refresh took effect must not
	// reclaim the extended lease.
	s.expire(e.Lease)

	view, err := s.ListSorted(ctx, "/election/")
	require.NoError(t, err)
	assert.Len(t, view.Entries, 1)
}

func TestCompaction(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ctx := context.Background()
	_, err := s.CreateWithLease(ctx, "/election/", "node-1", time.Minute)
	require.NoError(t, err)

	ch, err := s.Watch(ctx, "/election/", s.Revision())
	require.NoError(t, err)

	s.Compact(s.Revision())

	event := <-ch
	assert.True(t, store.IsHistoryGap(event.Err))
	_, ok := <-ch
	assert.False(t, ok)

	// A watch from a compacted revision fails immediately
	ch, err = s.Watch(ctx, "/election/", 0)
	require.NoError(t, err)
	event = <-ch
	assert.True(t, store.IsHistoryGap(event.Err))
}
