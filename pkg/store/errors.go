// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package store

import "github.com/pkg/errors"

var (
	// ErrNotFound indicates the requested entry or lease does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates a transient store or network failure. The
	// operation may be retried.
	ErrUnavailable = errors.New("store unavailable")

	// ErrHistoryGap indicates the store has discarded history a watch
	// depended on. The watcher must take a fresh snapshot before resuming.
	ErrHistoryGap = errors.New("watch history gap")
)

// IsNotFound returns whether the given error is an ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable returns whether the given error is an ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsHistoryGap returns whether the given error is an ErrHistoryGap.
func IsHistoryGap(err error) bool {
	return errors.Is(err, ErrHistoryGap)
}
