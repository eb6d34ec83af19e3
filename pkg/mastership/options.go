// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultKeepaliveInterval = 5 * time.Second
	defaultWithdrawTimeout   = 10 * time.Second

	// leaseTTLFactor sizes the lease TTL relative to the keepalive
	// interval, tolerating two missed refreshes before expiry.
	leaseTTLFactor = 3
)

// Option is an election option
type Option interface {
	apply(options *Options)
}

// Options is election options
type Options struct {
	// OwnerID identifies this participant in the election directory. It
	// should be stable across restarts of a logical participant.
	OwnerID string

	// KeepaliveInterval is the period between lease refreshes. The lease
	// TTL is derived from it.
	KeepaliveInterval time.Duration

	// WithdrawTimeout bounds how long Stop waits for the store to confirm
	// deletion of the candidacy entry.
	WithdrawTimeout time.Duration

	// Logger receives election diagnostics.
	Logger zerolog.Logger
}

func (o *Options) apply(opts ...Option) {
	o.KeepaliveInterval = defaultKeepaliveInterval
	o.WithdrawTimeout = defaultWithdrawTimeout
	o.Logger = log.Logger
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.OwnerID == "" {
		o.OwnerID = uuid.New().String()
	}
}

// LeaseTTL returns the lease TTL derived from the keepalive interval.
func (o *Options) LeaseTTL() time.Duration {
	return leaseTTLFactor * o.KeepaliveInterval
}

func newFuncOption(f func(*Options)) Option {
	return funcOption{f}
}

type funcOption struct {
	f func(*Options)
}

func (o funcOption) apply(options *Options) {
	o.f(options)
}

// WithOwnerID sets the participant's owner identifier
func WithOwnerID(ownerID string) Option {
	return newFuncOption(func(options *Options) {
		options.OwnerID = ownerID
	})
}

// WithKeepaliveInterval sets the interval between lease refreshes
func WithKeepaliveInterval(interval time.Duration) Option {
	return newFuncOption(func(options *Options) {
		options.KeepaliveInterval = interval
	})
}

// WithWithdrawTimeout bounds how long Stop waits for withdrawal to be confirmed
func WithWithdrawTimeout(timeout time.Duration) Option {
	return newFuncOption(func(options *Options) {
		options.WithdrawTimeout = timeout
	})
}

// WithLogger sets the logger election diagnostics are written to
func WithLogger(logger zerolog.Logger) Option {
	return newFuncOption(func(options *Options) {
		options.Logger = logger
	})
}
