// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package etcd

import "time"

const (
	defaultEndpoint    = "127.0.0.1:2379"
	defaultDialTimeout = 5 * time.Second
)

// Option is an etcd store option
type Option interface {
	apply(options *Options)
}

// Options is etcd store options
type Options struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
}

func (o *Options) apply(opts ...Option) {
	o.DialTimeout = defaultDialTimeout
	for _, opt := range opts {
		opt.apply(o)
	}
	if len(o.Endpoints) == 0 {
		o.Endpoints = []string{defaultEndpoint}
	}
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

// WithEndpoints sets the etcd endpoints to connect to
func WithEndpoints(endpoints ...string) Option {
	return newFuncOption(func(options *Options) {
		options.Endpoints = endpoints
	})
}

// WithAuth sets the credentials used to authenticate to etcd
func WithAuth(username, password string) Option {
	return newFuncOption(func(options *Options) {
		options.Username = username
		options.Password = password
	})
}

// WithDialTimeout sets the timeout for establishing the client connection
func WithDialTimeout(timeout time.Duration) Option {
	return newFuncOption(func(options *Options) {
		options.DialTimeout = timeout
	})
}
