// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/mastership/go-sdk/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func newProposal(s store.Store, dir string, options Options) *proposal {
	return &proposal{
		store:   s,
		dir:     dir,
		options: options,
		logger:  options.Logger.With().Str("directory", dir).Str("owner", options.OwnerID).Logger(),
	}
}

// proposal owns the single candidacy entry this participant contributes to
// the election directory: creation, lease refresh, and withdrawal.
type proposal struct {
	store   store.Store
	dir     string
	options Options
	logger  zerolog.Logger

	mu         sync.Mutex
	entry      *store.Entry
	refreshing int32
}

// propose creates a fresh candidacy entry, retrying transient store failures
// until the context is cancelled.
func (p *proposal) propose(ctx context.Context) (*store.Entry, error) {
	var entry *store.Entry
	err := backoff.Retry(func() error {
		e, err := p.store.CreateWithLease(ctx, p.dir, p.options.OwnerID, p.options.LeaseTTL())
		if err != nil {
			if store.IsUnavailable(err) {
				p.logger.Debug().Err(err).Msg("Create candidacy entry failed; retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		entry = e
		return nil
	}, newBackOff(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "proposing candidacy")
	}

	p.mu.Lock()
	p.entry = entry
	p.mu.Unlock()
	p.logger.Debug().Int64("seq", entry.Seq).Msg("Candidacy entry created")
	return entry, nil
}

// current returns the live candidacy entry, if any.
func (p *proposal) current() *store.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entry
}

// refresh extends the candidacy lease without blocking the caller. At most
// one refresh is in flight at a time; failures are logged and retried on the
// next keepalive tick. Lease loss is never acted on here: the directory
// observer is the single authority for mastership changes.
func (p *proposal) refresh(ctx context.Context) {
	entry := p.current()
	if entry == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&p.refreshing, 0, 1) {
		return
	}
	go func() {
		defer atomic.StoreInt32(&p.refreshing, 0)
		rctx, cancel := context.WithTimeout(ctx, p.options.KeepaliveInterval)
		defer cancel()
		err := backoff.Retry(func() error {
			err := p.store.RefreshLease(rctx, entry.Lease, p.options.LeaseTTL())
			if err != nil && !store.IsUnavailable(err) {
				return backoff.Permanent(err)
			}
			return err
		}, newBackOff(rctx))
		switch {
		case err == nil:
		case store.IsNotFound(err):
			p.logger.Warn().Msg("Candidacy lease expired")
		case rctx.Err() == nil:
			p.logger.Warn().Err(err).Msg("Keepalive refresh failed")
		}
	}()
}

// withdraw deletes the candidacy entry. An entry already removed by the
// store counts as success.
func (p *proposal) withdraw(ctx context.Context) error {
	p.mu.Lock()
	entry := p.entry
	p.entry = nil
	p.mu.Unlock()
	if entry == nil {
		return nil
	}

	err := backoff.Retry(func() error {
		err := p.store.Delete(ctx, entry.Path)
		switch {
		case err == nil, store.IsNotFound(err):
			return nil
		case store.IsUnavailable(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}, newBackOff(ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrWithdrawTimeout
		}
		return errors.Wrap(err, "withdrawing candidacy")
	}
	p.logger.Debug().Msg("Candidacy entry withdrawn")
	return nil
}

// newBackOff returns the retry policy for store operations: exponential,
// unbounded, cancelled with the context.
func newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}
