// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sort"
	"time"
)

// Store is the capability contract the election core consumes from the
// coordination service. Implementations must be safe for concurrent use by
// multiple elections multiplexed over a single client session.
type Store interface {
	// CreateWithLease atomically allocates a new entry under the given
	// directory prefix with a store-assigned, strictly increasing sequence
	// key, bound to a lease with the given TTL. The entry is reclaimed by
	// the store if the lease is not refreshed before the TTL elapses.
	CreateWithLease(ctx context.Context, prefix string, value string, ttl time.Duration) (*Entry, error)

	// RefreshLease extends the lease bound to a previously created entry.
	// Returns ErrNotFound if the lease has already expired.
	RefreshLease(ctx context.Context, lease LeaseID, ttl time.Duration) error

	// Delete removes the entry at the given path. Returns ErrNotFound if the
	// entry no longer exists.
	Delete(ctx context.Context, path string) error

	// ListSorted returns all live entries under the given prefix ordered by
	// sequence key ascending, together with the store revision at which the
	// snapshot was taken.
	ListSorted(ctx context.Context, prefix string) (*View, error)

	// Watch streams changes to the entries under the given prefix, starting
	// after the given revision. The returned channel is closed when the
	// watch terminates; a terminal failure is delivered as a final event
	// carrying Err. If the requested revision has been compacted out of the
	// store's history the failure is ErrHistoryGap and the caller must
	// re-list before watching again.
	Watch(ctx context.Context, prefix string, fromRev int64) (<-chan Event, error)

	// Close releases the underlying client session.
	Close() error
}

// LeaseID is an opaque handle on a store lease.
type LeaseID int64

// Entry is a single live registration under an election directory.
type Entry struct {
	// Path is the full key path of the entry.
	Path string

	// Seq is the store-assigned sequence key, strictly increasing within a
	// directory. The live entry with the smallest sequence key holds
	// mastership.
	Seq int64

	// Value is the owner identifier recorded with the entry.
	Value string

	// Lease is the handle used to refresh or release the entry.
	Lease LeaseID
}

// View is an ordered snapshot of the live entries under a directory.
type View struct {
	// Entries is ordered by Seq ascending.
	Entries []Entry

	// Revision is the store revision at which the snapshot was taken.
	// Watches resume from the event following it.
	Revision int64
}

// First returns the entry with the smallest sequence key, if any.
func (v *View) First() (Entry, bool) {
	if len(v.Entries) == 0 {
		return Entry{}, false
	}
	return v.Entries[0], true
}

// Find returns the entry at the given path, if present.
func (v *View) Find(path string) (Entry, bool) {
	for _, e := range v.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// Upsert inserts or replaces the entry, keeping Entries ordered by Seq.
func (v *View) Upsert(entry Entry) {
	v.Remove(entry.Path)
	i := sort.Search(len(v.Entries), func(i int) bool {
		return v.Entries[i].Seq >= entry.Seq
	})
	v.Entries = append(v.Entries, Entry{})
	copy(v.Entries[i+1:], v.Entries[i:])
	v.Entries[i] = entry
}

// Remove deletes the entry at the given path, if present.
func (v *View) Remove(path string) {
	for i, e := range v.Entries {
		if e.Path == path {
			v.Entries = append(v.Entries[:i], v.Entries[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of the view.
func (v *View) Clone() View {
	entries := make([]Entry, len(v.Entries))
	copy(entries, v.Entries)
	return View{
		Entries:  entries,
		Revision: v.Revision,
	}
}

// EventType is the type of a directory change event.
type EventType string

const (
	// EventAdded indicates a new entry appeared under the directory.
	EventAdded EventType = "added"

	// EventRemoved indicates an entry was deleted or its lease expired.
	EventRemoved EventType = "removed"
)

// Event is a single change to an election directory.
type Event struct {
	// Type is the type of the event.
	Type EventType

	// Entry is the entry the event applies to. For removals the sequence
	// key and value reflect the entry's state prior to removal.
	Entry Entry

	// Rev is the store revision at which the change occurred.
	Rev int64

	// Err is set on the final event of a failed watch.
	Err error
}
