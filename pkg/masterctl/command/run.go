// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mastership/go-sdk/pkg/mastership"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <directory>",
		Short: "Compete for mastership of an election directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunCommand,
	}
	cmd.Flags().StringP("owner", "o", "", "the owner identifier to register with")
	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newStoreFromConfig(config)
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []mastership.Option
	owner, err := cmd.Flags().GetString("owner")
	if err != nil {
		return err
	}
	if owner == "" {
		owner = config.OwnerID
	}
	if owner != "" {
		opts = append(opts, mastership.WithOwnerID(owner))
	}
	if config.KeepaliveInterval > 0 {
		opts = append(opts, mastership.WithKeepaliveInterval(time.Duration(config.KeepaliveInterval)*time.Second))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	election := mastership.New(s, args[0], opts...)
	events := make(chan mastership.Event)
	if err := election.Watch(ctx, events); err != nil {
		return err
	}
	go func() {
		for event := range events {
			log.Info().
				Str("master", event.Term.Leader).
				Strs("candidates", event.Term.Candidates).
				Msg("Election changed")
		}
	}()

	if err := election.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return election.Stop(stopCtx)
}
