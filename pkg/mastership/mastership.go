// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"context"
)

// Join creates an election on the given directory using the process-wide
// store configured from the environment and starts competing immediately.
// Elections created this way share one store client per process.
func Join(ctx context.Context, directory string, opts ...Option) (Election, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	election := New(s, directory, opts...)
	if err := election.Start(ctx); err != nil {
		return nil, err
	}
	return election, nil
}
