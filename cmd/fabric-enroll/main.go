/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// fabric-enroll enrolls a user with a Hyperledger Fabric CA and imports the
// issued identity into a wallet.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nbrb/fabric-enroll/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
