/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microsoft/jdwp/internal/jdwpctl/commands"
	"github.com/microsoft/jdwp/pkg/logger"
	"github.com/microsoft/jdwp/pkg/telemetry"
)

const (
	errCommandError = 1
	errSetup        = 2
	errPanic        = 3
)

func main() {
	log := logger.New("jdwpctl")
	defer log.BeforeExit(func(value interface{}) { os.Exit(errPanic) })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetrySystem, telemetryErr := telemetry.NewTelemetrySystem("jdwpctl")
	if telemetryErr != nil {
		log.Error(telemetryErr, "Could not set up telemetry")
		log.Flush()
		os.Exit(errSetup)
	}

	root, err := commands.NewRootCommand(log)
	if err != nil {
		log.Error(err, "Could not set up commands")
		_ = telemetrySystem.Shutdown(ctx)
		log.Flush()
		os.Exit(errSetup)
	}

	err = root.ExecuteContext(ctx)
	_ = telemetrySystem.Shutdown(context.WithoutCancel(ctx))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Flush()
		os.Exit(errCommandError)
	}
}
