/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main PID Issuer REST API.
//
//	Schemes: http, https
//	License: SPDX-License-Identifier: Apache-2.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
package main

import (
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/cmd/pid-issuer/startcmd"
)

var logger = log.New("pid-issuer")

func main() {
	rootCmd := &cobra.Command{
		Use: "pid-issuer",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to run pid-issuer", log.WithError(err))
	}
}
