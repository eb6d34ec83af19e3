// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/mastership/go-sdk/pkg/masterctl"
)

func main() {
	masterctl.Execute()
}
