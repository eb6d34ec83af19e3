// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"os"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/mastership/go-sdk/pkg/store/etcd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the masterctl configuration file format
type Config struct {
	// Endpoints is the list of coordination store endpoints
	Endpoints []string `yaml:"endpoints"`

	// Username authenticates to the coordination store
	Username string `yaml:"username"`

	// Password authenticates to the coordination store
	Password string `yaml:"password"`

	// OwnerID identifies this participant; defaults to a generated ID
	OwnerID string `yaml:"owner-id"`

	// KeepaliveInterval is the lease refresh interval in seconds
	KeepaliveInterval int `yaml:"keepalive-interval"`
}

// loadConfig reads the configuration file named by the --config flag, if
// any, then applies flag overrides.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	config := &Config{}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading configuration")
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "parsing configuration")
		}
	}
	endpoints, err := cmd.Flags().GetStringSlice("endpoints")
	if err != nil {
		return nil, err
	}
	if len(endpoints) > 0 {
		config.Endpoints = endpoints
	}
	return config, nil
}

func newStoreFromConfig(config *Config) (store.Store, error) {
	var opts []etcd.Option
	if len(config.Endpoints) > 0 {
		opts = append(opts, etcd.WithEndpoints(config.Endpoints...))
	}
	if config.Username != "" {
		opts = append(opts, etcd.WithAuth(config.Username, config.Password))
	}
	return etcd.NewStore(opts...)
}
