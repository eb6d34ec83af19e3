// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <directory>",
		Short: "Print the current master and candidates of an election directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatusCommand,
	}
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newStoreFromConfig(config)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	directory := args[0]
	if !strings.HasSuffix(directory, "/") {
		directory += "/"
	}
	view, err := s.ListSorted(ctx, directory)
	if err != nil {
		return err
	}
	if len(view.Entries) == 0 {
		fmt.Println("no candidates")
		return nil
	}
	for i, entry := range view.Entries {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Printf("%s %s (seq %d)\n", marker, entry.Value, entry.Seq)
	}
	return nil
}
