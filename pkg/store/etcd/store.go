// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package etcd provides the etcd-backed coordination store. Sequence keys
// are etcd create revisions, leases map directly onto etcd leases, and watch
// history gaps surface etcd compaction.
package etcd

import (
	"context"
	"fmt"
	"time"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewStore creates a new etcd-backed coordination store.
func NewStore(opts ...Option) (store.Store, error) {
	var options Options
	options.apply(opts...)
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   options.Endpoints,
		Username:    options.Username,
		Password:    options.Password,
		DialTimeout: options.DialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to etcd")
	}
	return &etcdStore{
		client: client,
		logger: log.With().Str("component", "etcd").Logger(),
	}, nil
}

// NewStoreFromClient wraps an existing etcd client. The caller retains
// ownership of the client; Close is a no-op.
func NewStoreFromClient(client *clientv3.Client) store.Store {
	return &etcdStore{
		client: client,
		logger: log.With().Str("component", "etcd").Logger(),
		shared: true,
	}
}

type etcdStore struct {
	client *clientv3.Client
	logger zerolog.Logger
	shared bool
}

func (s *etcdStore) CreateWithLease(ctx context.Context, prefix string, value string, ttl time.Duration) (*store.Entry, error) {
	lease, err := s.client.Grant(ctx, ttlSeconds(ttl))
	if err != nil {
		return nil, convertError(err)
	}

	// The key embeds the lease ID, so concurrent creates never collide and
	// a duplicate commit of the same txn reads back the existing entry. A
	// retried call grants a fresh lease and key; an entry orphaned by a
	// lost response expires with its lease.
	key := fmt.Sprintf("%s%016x", prefix, lease.ID)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease.ID))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return nil, convertError(err)
	}

	entry := &store.Entry{
		Path:  key,
		Value: value,
		Lease: store.LeaseID(lease.ID),
	}
	if resp.Succeeded {
		entry.Seq = resp.Header.Revision
	} else {
		kvs := resp.Responses[0].GetResponseRange().Kvs
		if len(kvs) == 0 {
			return nil, errors.Wrap(store.ErrUnavailable, "entry vanished during create")
		}
		entry.Seq = kvs[0].CreateRevision
	}
	return entry, nil
}

func (s *etcdStore) RefreshLease(ctx context.Context, lease store.LeaseID, ttl time.Duration) error {
	// etcd keepalives reuse the TTL the lease was granted with.
	_, err := s.client.KeepAliveOnce(ctx, clientv3.LeaseID(lease))
	return convertError(err)
}

func (s *etcdStore) Delete(ctx context.Context, path string) error {
	resp, err := s.client.Delete(ctx, path)
	if err != nil {
		return convertError(err)
	}
	if resp.Deleted == 0 {
		return errors.Wrapf(store.ErrNotFound, "%s", path)
	}
	return nil
}

func (s *etcdStore) ListSorted(ctx context.Context, prefix string) (*store.View, error) {
	resp, err := s.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend))
	if err != nil {
		return nil, convertError(err)
	}
	view := &store.View{
		Revision: resp.Header.Revision,
	}
	for _, kv := range resp.Kvs {
		view.Entries = append(view.Entries, store.Entry{
			Path:  string(kv.Key),
			Seq:   kv.CreateRevision,
			Value: string(kv.Value),
			Lease: store.LeaseID(kv.Lease),
		})
	}
	return view, nil
}

func (s *etcdStore) Watch(ctx context.Context, prefix string, fromRev int64) (<-chan store.Event, error) {
	watch := s.client.Watch(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithRev(fromRev+1),
		clientv3.WithPrevKV())

	ch := make(chan store.Event)
	go func() {
		defer close(ch)
		for resp := range watch {
			if err := resp.Err(); err != nil {
				s.send(ctx, ch, store.Event{Err: convertError(err)})
				return
			}
			for _, ev := range resp.Events {
				event, ok := convertEvent(ev)
				if !ok {
					continue
				}
				if !s.send(ctx, ch, event) {
					return
				}
			}
		}
	}()
	return ch, nil
}

func (s *etcdStore) Close() error {
	if s.shared {
		return nil
	}
	return s.client.Close()
}

func (s *etcdStore) send(ctx context.Context, ch chan<- store.Event, event store.Event) bool {
	select {
	case ch <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func convertEvent(ev *clientv3.Event) (store.Event, bool) {
	switch ev.Type {
	case mvccpb.PUT:
		// Leases are refreshed without touching the key, so any put on an
		// existing key is outside the protocol and ignored.
		if ev.Kv.CreateRevision != ev.Kv.ModRevision {
			return store.Event{}, false
		}
		return store.Event{
			Type: store.EventAdded,
			Entry: store.Entry{
				Path:  string(ev.Kv.Key),
				Seq:   ev.Kv.CreateRevision,
				Value: string(ev.Kv.Value),
				Lease: store.LeaseID(ev.Kv.Lease),
			},
			Rev: ev.Kv.ModRevision,
		}, true
	case mvccpb.DELETE:
		entry := store.Entry{
			Path: string(ev.Kv.Key),
		}
		if ev.PrevKv != nil {
			entry.Seq = ev.PrevKv.CreateRevision
			entry.Value = string(ev.PrevKv.Value)
			entry.Lease = store.LeaseID(ev.PrevKv.Lease)
		}
		return store.Event{
			Type:  store.EventRemoved,
			Entry: entry,
			Rev:   ev.Kv.ModRevision,
		}, true
	}
	return store.Event{}, false
}

func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rpctypes.ErrLeaseNotFound):
		return errors.Wrap(store.ErrNotFound, err.Error())
	case errors.Is(err, rpctypes.ErrCompacted):
		return errors.Wrap(store.ErrHistoryGap, err.Error())
	}
	if code := status.Code(err); code == codes.Unavailable || code == codes.DeadlineExceeded {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	return err
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
