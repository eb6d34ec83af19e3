// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/mastership/go-sdk/pkg/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDir = "/election/test/"

func newTestElection(s store.Store, owner string) Election {
	return New(s, testDir,
		WithOwnerID(owner),
		WithKeepaliveInterval(50*time.Millisecond),
		WithWithdrawTimeout(time.Second),
		WithLogger(zerolog.Nop()))
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMastershipAcquire(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	election := newTestElection(s, "node-1")
	assert.False(t, election.IsMaster())
	assert.Equal(t, StateIdle, election.State())

	require.NoError(t, election.Start(ctx))
	require.NoError(t, election.WaitToBecomeMaster(ctx))
	assert.True(t, election.IsMaster())
	assert.Equal(t, StateMaster, election.State())

	leader, ok := election.Leader()
	assert.True(t, ok)
	assert.Equal(t, "node-1", leader)
	assert.Equal(t, []string{"node-1"}, election.Candidates())

	require.NoError(t, election.Stop(ctx))
	assert.False(t, election.IsMaster())
}

func TestFailoverOrdering(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	a := newTestElection(s, "a")
	b := newTestElection(s, "b")
	c := newTestElection(s, "c")

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.WaitToBecomeMaster(ctx))
	require.NoError(t, b.Start(ctx))
	require.NoError(t, c.Start(ctx))

	assert.Eventually(t, func() bool {
		candidates := a.Candidates()
		return len(candidates) == 3
	}, time.Second, 10*time.Millisecond)
	assert.True(t, a.IsMaster())
	assert.False(t, b.IsMaster())
	assert.False(t, c.IsMaster())

	// The next-lowest sequence key wins, not the newest
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, b.WaitToBecomeMaster(ctx))
	assert.False(t, a.IsMaster())
	assert.False(t, c.IsMaster())

	assert.Eventually(t, func() bool {
		leader, ok := c.Leader()
		return ok && leader == "b"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Stop(ctx))
	require.NoError(t, c.WaitToBecomeMaster(ctx))
	assert.True(t, c.IsMaster())
	require.NoError(t, c.Stop(ctx))
}

func TestStopReleasesWaiter(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	a := newTestElection(s, "a")
	b := newTestElection(s, "b")
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.WaitToBecomeMaster(ctx))
	require.NoError(t, b.Start(ctx))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.WaitToBecomeMaster(ctx)
	}()

	// Let the waiter block before stopping
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Stop(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Stop")
	}

	require.NoError(t, a.Stop(ctx))
}

func TestRejoin(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	a := newTestElection(s, "a")
	b := newTestElection(s, "b")

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.WaitToBecomeMaster(ctx))
	require.NoError(t, b.Start(ctx))

	require.NoError(t, a.Stop(ctx))
	require.NoError(t, b.WaitToBecomeMaster(ctx))

	// Prior mastership grants no priority on rejoin
	require.NoError(t, a.Start(ctx))
	assert.Eventually(t, func() bool {
		candidates := b.Candidates()
		return len(candidates) == 2 && candidates[0] == "b" && candidates[1] == "a"
	}, time.Second, 10*time.Millisecond)
	assert.True(t, b.IsMaster())
	assert.False(t, a.IsMaster())

	require.NoError(t, b.Stop(ctx))
	require.NoError(t, a.WaitToBecomeMaster(ctx))
	assert.True(t, a.IsMaster())
	require.NoError(t, a.Stop(ctx))
}

func TestStartStopErrors(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	election := newTestElection(s, "node-1")
	assert.ErrorIs(t, election.Stop(ctx), ErrNotStarted)
	assert.ErrorIs(t, election.WaitToBecomeMaster(ctx), ErrNotStarted)

	require.NoError(t, election.Start(ctx))
	assert.ErrorIs(t, election.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, election.Stop(ctx))
	assert.ErrorIs(t, election.Stop(ctx), ErrNotStarted)
}

func TestWithdrawIdempotent(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	election := newTestElection(s, "node-1")
	require.NoError(t, election.Start(ctx))
	require.NoError(t, election.WaitToBecomeMaster(ctx))

	// Remove the candidacy entry out from under the election; stopping must
	// still succeed.
	view, err := s.ListSorted(ctx, testDir)
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)
	require.NoError(t, s.Delete(ctx, view.Entries[0].Path))

	assert.NoError(t, election.Stop(ctx))
	assert.False(t, election.IsMaster())
}

// wedgedDeleteStore refuses deletions, simulating a store that stays
// unreachable through the whole withdraw window.
type wedgedDeleteStore struct {
	*memory.Store
}

func (s *wedgedDeleteStore) Delete(ctx context.Context, path string) error {
	return store.ErrUnavailable
}

func TestStopWithdrawTimeout(t *testing.T) {
	base := memory.NewStore()
	defer base.Close()
	ctx := testContext(t)

	election := New(&wedgedDeleteStore{Store: base}, testDir,
		WithOwnerID("node-1"),
		WithKeepaliveInterval(50*time.Millisecond),
		WithWithdrawTimeout(200*time.Millisecond),
		WithLogger(zerolog.Nop()))

	require.NoError(t, election.Start(ctx))
	require.NoError(t, election.WaitToBecomeMaster(ctx))

	// The withdrawal is never confirmed; Stop reports the timeout but the
	// local election still lands in idle.
	err := election.Stop(ctx)
	assert.ErrorIs(t, err, ErrWithdrawTimeout)
	assert.Equal(t, StateIdle, election.State())
	assert.False(t, election.IsMaster())

	// The abandoned entry expires with its lease store-side, so a restart
	// regains mastership under a fresh sequence key.
	require.NoError(t, election.Start(ctx))
	assert.NoError(t, election.WaitToBecomeMaster(ctx))
	assert.ErrorIs(t, election.Stop(ctx), ErrWithdrawTimeout)
}

func TestLeaseExpiryRepropose(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	election := newTestElection(s, "node-1")
	require.NoError(t, election.Start(ctx))
	require.NoError(t, election.WaitToBecomeMaster(ctx))

	view, err := s.ListSorted(ctx, testDir)
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)
	expired := view.Entries[0]

	// Simulate a stalled keepalive: the entry vanishes and the election
	// must re-establish candidacy with a fresh sequence key.
	s.ExpireLease(expired.Lease)

	assert.Eventually(t, func() bool {
		view, err := s.ListSorted(ctx, testDir)
		if err != nil || len(view.Entries) != 1 {
			return false
		}
		return view.Entries[0].Seq > expired.Seq && election.IsMaster()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, election.Stop(ctx))
}

func TestWatchEvents(t *testing.T) {
	s := memory.NewStore()
	defer s.Close()
	ctx := testContext(t)

	a := newTestElection(s, "a")
	ch := make(chan Event, 10)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	require.NoError(t, a.Watch(watchCtx, ch))

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.WaitToBecomeMaster(ctx))

	select {
	case event := <-ch:
		assert.Equal(t, EventChange, event.Type)
		assert.Equal(t, "a", event.Term.Leader)
		assert.Equal(t, []string{"a"}, event.Term.Candidates)
	case <-time.After(time.Second):
		t.Fatal("no election event received")
	}

	b := newTestElection(s, "b")
	require.NoError(t, b.Start(ctx))
	select {
	case event := <-ch:
		assert.Equal(t, "a", event.Term.Leader)
		assert.Equal(t, []string{"a", "b"}, event.Term.Candidates)
	case <-time.After(time.Second):
		t.Fatal("no election event received")
	}

	require.NoError(t, a.Stop(ctx))
	require.NoError(t, b.Stop(ctx))
}

func TestElectionMania(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping election mania in short mode")
	}

	s := memory.NewStore()
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const numParticipants = 20
	const numRounds = 20

	elections := make([]Election, numParticipants)
	for i := range elections {
		elections[i] = New(s, testDir,
			WithOwnerID(fmt.Sprintf("participant-%d", i)),
			WithKeepaliveInterval(200*time.Millisecond),
			WithWithdrawTimeout(5*time.Second),
			WithLogger(zerolog.Nop()))
	}

	var maxMasters int32
	var wg sync.WaitGroup
	for _, election := range elections {
		wg.Add(1)
		go func(election Election) {
			defer wg.Done()
			for round := 0; round < numRounds; round++ {
				if !assert.NoError(t, election.Start(ctx)) {
					return
				}
				if !assert.NoError(t, election.WaitToBecomeMaster(ctx)) {
					return
				}
				// Sample the cluster from the new master's point of view.
				// There may transiently be no master, but never two.
				masters := int32(0)
				for _, other := range elections {
					if other.IsMaster() {
						masters++
					}
				}
				for {
					max := atomic.LoadInt32(&maxMasters)
					if masters <= max || atomic.CompareAndSwapInt32(&maxMasters, max, masters) {
						break
					}
				}
				if !assert.NoError(t, election.Stop(ctx)) {
					return
				}
			}
		}(election)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxMasters), int32(1))
}

func BenchmarkMastershipHandover(b *testing.B) {
	s := memory.NewStore()
	defer s.Close()
	ctx := context.Background()

	election := New(s, "/election/bench/",
		WithOwnerID("bench"),
		WithKeepaliveInterval(time.Second),
		WithLogger(zerolog.Nop()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := election.Start(ctx); err != nil {
			b.Fatal(err)
		}
		if err := election.WaitToBecomeMaster(ctx); err != nil {
			b.Fatal(err)
		}
		if err := election.Stop(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
