// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package mastership

import (
	"os"
	"strings"
	"sync"

	"github.com/mastership/go-sdk/pkg/store"
	"github.com/mastership/go-sdk/pkg/store/etcd"
)

const endpointsEnv = "MASTERSHIP_ENDPOINTS"
const usernameEnv = "MASTERSHIP_USERNAME"
const passwordEnv = "MASTERSHIP_PASSWORD"

var envStore store.Store
var envStoreMu sync.RWMutex

func getStore() (store.Store, error) {
	envStoreMu.RLock()
	s := envStore
	envStoreMu.RUnlock()
	if s != nil {
		return s, nil
	}

	envStoreMu.Lock()
	defer envStoreMu.Unlock()
	if envStore != nil {
		return envStore, nil
	}

	var opts []etcd.Option
	if endpoints := os.Getenv(endpointsEnv); endpoints != "" {
		opts = append(opts, etcd.WithEndpoints(strings.Split(endpoints, ",")...))
	}
	if username := os.Getenv(usernameEnv); username != "" {
		opts = append(opts, etcd.WithAuth(username, os.Getenv(passwordEnv)))
	}
	s, err := etcd.NewStore(opts...)
	if err != nil {
		return nil, err
	}
	envStore = s
	return s, nil
}
