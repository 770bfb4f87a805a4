/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	cmds "github.com/microsoft/jdwp/internal/commands"
	"github.com/microsoft/jdwp/internal/jdwp"
	"github.com/microsoft/jdwp/pkg/logger"
)

type idSizesOutput struct {
	FieldID         int `json:"fieldID"`
	MethodID        int `json:"methodID"`
	ObjectID        int `json:"objectID"`
	ReferenceTypeID int `json:"referenceTypeID"`
	FrameID         int `json:"frameID"`
}

type infoOutput struct {
	Version      jdwp.VersionInfo `json:"version"`
	IDSizes      idSizesOutput    `json:"idSizes"`
	Capabilities []string         `json:"capabilities"`
}

func NewInfoCommand(log *logger.Logger) (*cobra.Command, error) {
	flags := &attachFlags{}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Prints what a VM is and what it supports",
		Long: `Attaches to a VM and prints its version, identifier sizes, and the capabilities
it granted to the session, as JSON. The session is disposed afterwards and the VM keeps running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getInfo(cmd, flags, log)
		},
	}

	flags.addTo(infoCmd.Flags())

	return infoCmd, nil
}

func getInfo(cmd *cobra.Command, flags *attachFlags, rootLog *logger.Logger) error {
	log := rootLog.Logger.WithName("info")
	ctx := cmd.Context()

	client, err := flags.attach(ctx, log)
	if err != nil {
		return err
	}

	version, versionErr := client.Version(ctx)
	disposeErr := client.Dispose(ctx)
	if versionErr != nil {
		return errors.Join(versionErr, disposeErr)
	}
	if disposeErr != nil {
		log.Info("Could not dispose the debug session", "Error", disposeErr.Error())
	}

	sizes := client.IDSizes()
	output := infoOutput{
		Version: version,
		IDSizes: idSizesOutput{
			FieldID:         sizes.FieldID,
			MethodID:        sizes.MethodID,
			ObjectID:        sizes.ObjectID,
			ReferenceTypeID: sizes.ReferenceTypeID,
			FrameID:         sizes.FrameID,
		},
		Capabilities: client.Capabilities().Names(),
	}

	b, marshalErr := json.MarshalIndent(output, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("could not serialize VM information: %w", marshalErr)
	}
	_, err = cmd.OutOrStdout().Write(cmds.WithNewline(b))
	return err
}
