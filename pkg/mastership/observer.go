// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/mastership/go-sdk/pkg/store"
	"github.com/rs/zerolog"
)

func newObserver(s store.Store, dir string, options Options) *observer {
	return &observer{
		store:  s,
		dir:    dir,
		logger: options.Logger.With().Str("directory", dir).Str("owner", options.OwnerID).Logger(),
	}
}

// observer maintains an ordered view of the live entries under the election
// directory and delivers a fresh snapshot on every change. Any watch
// discontinuity, including a history gap, is recovered by a full re-read:
// correctness depends on the view being a faithful snapshot, not on any
// particular event being delivered.
type observer struct {
	store  store.Store
	dir    string
	logger zerolog.Logger
}

func (o *observer) run(ctx context.Context, updates chan<- store.View) {
	defer close(updates)
	for ctx.Err() == nil {
		view, err := o.list(ctx)
		if err != nil {
			return
		}
		if !o.send(ctx, updates, view.Clone()) {
			return
		}
		o.watch(ctx, view, updates)
	}
}

// list reads a full directory snapshot, retrying transient failures until
// the context is cancelled.
func (o *observer) list(ctx context.Context) (*store.View, error) {
	var view *store.View
	err := backoff.Retry(func() error {
		v, err := o.store.ListSorted(ctx, o.dir)
		if err != nil {
			o.logger.Debug().Err(err).Msg("Directory read failed; retrying")
			return err
		}
		view = v
		return nil
	}, newBackOff(ctx))
	if err != nil {
		return nil, err
	}
	return view, nil
}

// watch applies incremental events to the view until the stream breaks,
// sending a snapshot after each change. Returning triggers a re-list.
func (o *observer) watch(ctx context.Context, view *store.View, updates chan<- store.View) {
	events, err := o.store.Watch(ctx, o.dir, view.Revision)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Directory watch failed")
		return
	}
	for event := range events {
		if event.Err != nil {
			if store.IsHistoryGap(event.Err) {
				o.logger.Debug().Msg("Watch fell behind store history; re-reading directory")
			} else {
				o.logger.Warn().Err(event.Err).Msg("Directory watch failed")
			}
			return
		}
		switch event.Type {
		case store.EventAdded:
			view.Upsert(event.Entry)
		case store.EventRemoved:
			view.Remove(event.Entry.Path)
		}
		if event.Rev > view.Revision {
			view.Revision = event.Rev
		}
		if !o.send(ctx, updates, view.Clone()) {
			return
		}
	}
}

func (o *observer) send(ctx context.Context, updates chan<- store.View, view store.View) bool {
	select {
	case updates <- view:
		return true
	case <-ctx.Done():
		return false
	}
}
