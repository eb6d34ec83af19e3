// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	var options Options
	options.apply()
	assert.NotEmpty(t, options.OwnerID)
	assert.Equal(t, defaultKeepaliveInterval, options.KeepaliveInterval)
	assert.Equal(t, defaultWithdrawTimeout, options.WithdrawTimeout)
	assert.Equal(t, 3*defaultKeepaliveInterval, options.LeaseTTL())

	options = Options{}
	options.apply(
		WithOwnerID("node-1"),
		WithKeepaliveInterval(2*time.Second),
		WithWithdrawTimeout(5*time.Second))
	assert.Equal(t, "node-1", options.OwnerID)
	assert.Equal(t, 2*time.Second, options.KeepaliveInterval)
	assert.Equal(t, 5*time.Second, options.WithdrawTimeout)
	assert.Equal(t, 6*time.Second, options.LeaseTTL())
}
