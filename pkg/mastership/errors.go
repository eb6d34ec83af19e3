// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import "github.com/pkg/errors"

var (
	// ErrAlreadyStarted is returned by Start when the election is already
	// participating.
	ErrAlreadyStarted = errors.New("election already started")

	// ErrNotStarted is returned by Stop and WaitToBecomeMaster when the
	// election is not participating.
	ErrNotStarted = errors.New("election not started")

	// ErrStopped is returned to waiters released by a concurrent Stop.
	ErrStopped = errors.New("election stopped")

	// ErrWithdrawTimeout is returned by Stop when the store did not confirm
	// withdrawal of the candidacy entry in time. Local state is still reset;
	// the store-side entry is reclaimed when its lease expires.
	ErrWithdrawTimeout = errors.New("withdraw timed out")
)
