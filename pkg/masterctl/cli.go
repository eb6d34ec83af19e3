// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package masterctl

import (
	"fmt"
	"os"

	"github.com/mastership/go-sdk/pkg/masterctl/command"
)

// Execute runs the masterctl command line client.
func Execute() {
	rootCmd := command.GetRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
