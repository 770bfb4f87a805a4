/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cmds "github.com/microsoft/jdwp/internal/commands"
	"github.com/microsoft/jdwp/pkg/logger"
)

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	var sessionLogs bool

	rootCmd := &cobra.Command{
		Use:   "jdwpctl",
		Short: "Talks to Java virtual machines over the Java Debug Wire Protocol",
		Long: `jdwpctl attaches to a Java virtual machine that listens for debuggers
	and inspects it over the Java Debug Wire Protocol (JDWP).

	It can report what the VM supports and stream the events the VM reports.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if sessionLogs {
				log.WithSessionSink()
			}
			cmds.LogVersion(log.Logger, "Starting jdwpctl...")(cmd, args)
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	if cmd, err := cmds.NewVersionCommand(log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	if cmd, err := NewInfoCommand(log); err != nil {
		return nil, fmt.Errorf("could not set up 'info' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	if cmd, err := NewEventsCommand(log); err != nil {
		return nil, fmt.Errorf("could not set up 'events' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	rootCmd.PersistentFlags().BoolVar(&sessionLogs, "session-logs", false, "Write the log entries of each debug session to a separate file in the system temporary folder")
	log.AddLevelFlag(rootCmd.PersistentFlags())

	return rootCmd, nil
}
