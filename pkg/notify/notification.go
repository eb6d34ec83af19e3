// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package notify provides a one-shot, resettable signal for bridging
// asynchronous event-loop code and blocking caller goroutines.
package notify

import (
	"context"
	"sync"
	"time"
)

// New creates a new unnotified Notification.
func New() *Notification {
	return &Notification{
		ch: make(chan struct{}),
	}
}

// Notification is a one-shot signal. Notify releases all current and future
// waiters until the signal is Reset. Notify is idempotent and all methods are
// safe for concurrent use.
type Notification struct {
	mu       sync.Mutex
	ch       chan struct{}
	notified bool
}

// Notify fires the signal, releasing all waiters. Calling Notify on an
// already notified signal has no effect.
func (n *Notification) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.notified {
		n.notified = true
		close(n.ch)
	}
}

// Notified returns whether the signal has fired since it was last reset.
func (n *Notification) Notified() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notified
}

// Reset rearms the signal. Waiters blocked at the time of the call remain
// released; subsequent waits block until the next Notify.
func (n *Notification) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notified {
		n.notified = false
		n.ch = make(chan struct{})
	}
}

// Done returns a channel that is closed once the signal has fired.
func (n *Notification) Done() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Wait blocks until the signal fires or the context is cancelled.
func (n *Notification) Wait(ctx context.Context) error {
	select {
	case <-n.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout blocks until the signal fires, returning false if the timeout
// elapses first.
func (n *Notification) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-n.Done():
		return true
	case <-timer.C:
		return false
	}
}
