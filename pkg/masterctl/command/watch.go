// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <directory>",
		Short: "Stream changes to an election directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchCommand,
	}
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newStoreFromConfig(config)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	directory := args[0]
	if !strings.HasSuffix(directory, "/") {
		directory += "/"
	}
	for ctx.Err() == nil {
		view, err := s.ListSorted(ctx, directory)
		if err != nil {
			return err
		}
		for _, entry := range view.Entries {
			fmt.Printf("%-8s %s (seq %d)\n", "live", entry.Value, entry.Seq)
		}
		events, err := s.Watch(ctx, directory, view.Revision)
		if err != nil {
			return err
		}
		for event := range events {
			if event.Err != nil {
				if store.IsHistoryGap(event.Err) {
					// Re-list and resume
					break
				}
				return event.Err
			}
			fmt.Printf("%-8s %s (seq %d)\n", event.Type, event.Entry.Value, event.Entry.Seq)
		}
	}
	return nil
}
