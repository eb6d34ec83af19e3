// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package command implements the masterctl commands for joining and
// inspecting master elections.
package command

import (
	"github.com/spf13/cobra"
)

// GetRootCommand returns the root masterctl command
func GetRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "masterctl {run,status,watch}",
		Short: "Master election command line client",
	}
	cmd.PersistentFlags().StringSliceP("endpoints", "e", nil, "the coordination store endpoints")
	cmd.PersistentFlags().StringP("config", "c", "", "the path to a masterctl configuration file")
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newWatchCommand())
	return cmd
}
