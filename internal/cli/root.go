/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cli implements the fabric-enroll command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var logger = logging.NewLogger("enroll")

var logModules = []string{"enroll", "enroll/client", "enroll/core", "enroll/common",
	"enroll/msp", "enroll/wallet"}

type globalOptions struct {
	logLevel string
}

// applyLogLevel sets --log-level on every module. Loading a profile sets
// client.logging.level, so commands call this again afterwards.
func (g *globalOptions) applyLogLevel() error {
	if g.logLevel == "" {
		return nil
	}
	level, err := logging.LogLevel(g.logLevel)
	if err != nil {
		return errors.WithMessage(err, "invalid --log-level")
	}
	for _, module := range logModules {
		logging.SetLevel(module, level)
	}
	return nil
}

// NewRootCommand creates the fabric-enroll command tree writing to out and errOut
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "fabric-enroll",
		Short: "Enroll identities with a Hyperledger Fabric CA and manage wallets",
		Long: `fabric-enroll enrolls a registered user with a Fabric CA and imports the
issued identity into a wallet. A user already present in the wallet is
never enrolled again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return g.applyLogLevel()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "",
		"log level: critical, error, warning, info or debug (overrides the profile's client.logging.level)")

	root.AddCommand(newEnrollCommand(g))
	root.AddCommand(newWalletCommand())
	return root
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := NewRootCommand(out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if _, ok := err.(*enrollError); ok {
			fmt.Fprintln(errOut, err)
		} else {
			fmt.Fprintf(errOut, "Error: %s\n", err)
		}
		return 1
	}
	return 0
}
