// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package memory provides a deterministic in-memory coordination store for
// tests. It implements the same capability contract as the etcd-backed
// store, including lease expiry, watch streams, and history compaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/pkg/errors"
)

const (
	watchBufferSize = 128
	eventLogLimit   = 1024
)

// NewStore creates a new in-memory coordination store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]store.Entry),
		leases:   make(map[store.LeaseID]*lease),
		watchers: make(map[*watcher]struct{}),
	}
}

// Store is an in-memory store.Store implementation. Entries are reclaimed by
// real timers when their lease TTL elapses, so tests exercise the same
// expiry paths as a live store.
type Store struct {
	mu        sync.Mutex
	rev       int64
	compacted int64
	nextLease store.LeaseID
	entries   map[string]store.Entry
	leases    map[store.LeaseID]*lease
	watchers  map[*watcher]struct{}
	log       []store.Event
	closed    bool
}

type lease struct {
	id       store.LeaseID
	path     string
	deadline time.Time
	timer    *time.Timer
}

type watcher struct {
	prefix string
	ch     chan store.Event
}

func (s *Store) CreateWithLease(ctx context.Context, prefix string, value string, ttl time.Duration) (*store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrUnavailable
	}

	s.rev++
	s.nextLease++
	id := s.nextLease
	entry := store.Entry{
		Path:  fmt.Sprintf("%s%016x", prefix, id),
		Seq:   s.rev,
		Value: value,
		Lease: id,
	}
	s.entries[entry.Path] = entry
	l := &lease{
		id:       id,
		path:     entry.Path,
		deadline: time.Now().Add(ttl),
	}
	l.timer = time.AfterFunc(ttl, func() {
		s.expire(id)
	})
	s.leases[id] = l

	s.publish(store.Event{
		Type:  store.EventAdded,
		Entry: entry,
		Rev:   s.rev,
	})
	return &entry, nil
}

func (s *Store) RefreshLease(ctx context.Context, id store.LeaseID, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrUnavailable
	}
	l, ok := s.leases[id]
	if !ok {
		return errors.Wrap(store.ErrNotFound, "lease expired")
	}
	l.deadline = time.Now().Add(ttl)
	l.timer.Reset(ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrUnavailable
	}
	entry, ok := s.entries[path]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "%s", path)
	}
	s.remove(entry)
	return nil
}

func (s *Store) ListSorted(ctx context.Context, prefix string) (*store.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrUnavailable
	}
	view := &store.View{
		Revision: s.rev,
	}
	for path, entry := range s.entries {
		if strings.HasPrefix(path, prefix) {
			view.Entries = append(view.Entries, entry)
		}
	}
	sort.Slice(view.Entries, func(i, j int) bool {
		return view.Entries[i].Seq < view.Entries[j].Seq
	})
	return view, nil
}

func (s *Store) Watch(ctx context.Context, prefix string, fromRev int64) (<-chan store.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrUnavailable
	}
	if fromRev < s.compacted {
		s.mu.Unlock()
		ch := make(chan store.Event, 1)
		ch <- store.Event{Err: store.ErrHistoryGap}
		close(ch)
		return ch, nil
	}
	w := &watcher{
		prefix: prefix,
		ch:     make(chan store.Event, watchBufferSize),
	}
	// Replay events that landed between the caller's snapshot and watcher
	// registration so the stream starts exactly after fromRev.
	for _, event := range s.log {
		if event.Rev <= fromRev || !strings.HasPrefix(event.Entry.Path, prefix) {
			continue
		}
		select {
		case w.ch <- event:
		default:
			w.fail(store.ErrHistoryGap)
			s.mu.Unlock()
			return w.ch, nil
		}
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			close(w.ch)
		}
	}()
	return w.ch, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, l := range s.leases {
		l.timer.Stop()
	}
	for w := range s.watchers {
		close(w.ch)
		delete(s.watchers, w)
	}
	return nil
}

// Compact simulates the store discarding its event history up to the given
// revision. Active watches are cancelled with a history gap and must take a
// fresh snapshot before resuming; new watches from an older revision fail
// the same way.
func (s *Store) Compact(rev int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev > s.compacted {
		s.compacted = rev
	}
	drop := 0
	for drop < len(s.log) && s.log[drop].Rev <= rev {
		drop++
	}
	s.log = s.log[drop:]
	for w := range s.watchers {
		w.fail(store.ErrHistoryGap)
		delete(s.watchers, w)
	}
}

// ExpireLease immediately expires the given lease, removing its entry as if
// the TTL had elapsed without a refresh.
func (s *Store) ExpireLease(id store.LeaseID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	l, ok := s.leases[id]
	if !ok {
		return
	}
	entry, ok := s.entries[l.path]
	if !ok {
		l.timer.Stop()
		delete(s.leases, id)
		return
	}
	s.remove(entry)
}

// Revision returns the store's current revision.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

func (s *Store) expire(id store.LeaseID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	l, ok := s.leases[id]
	if !ok {
		return
	}
	// A refresh may have extended the lease after this timer fired but
	// before it acquired the lock. Re-arm instead of removing.
	if remaining := time.Until(l.deadline); remaining > 0 {
		l.timer.Reset(remaining)
		return
	}
	entry, ok := s.entries[l.path]
	if !ok {
		delete(s.leases, id)
		return
	}
	s.remove(entry)
}

// remove deletes the entry and its lease and publishes the removal.
// Callers must hold s.mu.
func (s *Store) remove(entry store.Entry) {
	delete(s.entries, entry.Path)
	if l, ok := s.leases[entry.Lease]; ok {
		l.timer.Stop()
		delete(s.leases, entry.Lease)
	}
	s.rev++
	s.publish(store.Event{
		Type:  store.EventRemoved,
		Entry: entry,
		Rev:   s.rev,
	})
}

// publish records the event in the history log and fans it out to matching
// watchers. A watcher that cannot keep up is cancelled with a history gap.
// Callers must hold s.mu.
func (s *Store) publish(event store.Event) {
	s.log = append(s.log, event)
	if overflow := len(s.log) - eventLogLimit; overflow > 0 {
		s.compacted = s.log[overflow-1].Rev
		s.log = s.log[overflow:]
	}
	for w := range s.watchers {
		if !strings.HasPrefix(event.Entry.Path, w.prefix) {
			continue
		}
		select {
		case w.ch <- event:
		default:
			w.fail(store.ErrHistoryGap)
			delete(s.watchers, w)
		}
	}
}

// fail terminates the watcher, delivering err if there is room in the buffer.
func (w *watcher) fail(err error) {
	select {
	case w.ch <- store.Event{Err: err}:
	default:
	}
	close(w.ch)
}

var _ store.Store = (*Store)(nil)
