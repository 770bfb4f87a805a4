/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/microsoft/jdwp/internal/jdwp"
	"github.com/microsoft/jdwp/pkg/resiliency"
)

const (
	transportTCP       = "tcp"
	transportWebSocket = "websocket"

	defaultAttachTimeout = 30 * time.Second
)

// attachFlags are the flags shared by the commands that attach to a VM.
type attachFlags struct {
	address          string
	transport        string
	profilePath      string
	attachTimeout    time.Duration
	handshakeTimeout time.Duration
}

func (af *attachFlags) addTo(fs *pflag.FlagSet) {
	fs.StringVarP(&af.address, "address", "a", "", "Address of the VM: host:port for the tcp transport, or a ws:// URL for the websocket transport")
	fs.StringVar(&af.transport, "transport", transportTCP, "Transport to use, 'tcp' or 'websocket'")
	fs.StringVar(&af.profilePath, "profile", "", "Path to a YAML capability profile (the built-in profile is used by default)")
	fs.DurationVar(&af.attachTimeout, "attach-timeout", defaultAttachTimeout, "How long to keep retrying while the VM is not accepting connections")
	fs.DurationVar(&af.handshakeTimeout, "handshake-timeout", jdwp.DefaultHandshakeTimeout, "Timeout for the JDWP handshake")
}

func (af *attachFlags) validate() error {
	if af.address == "" {
		return fmt.Errorf("the --address flag is required")
	}
	if af.transport != transportTCP && af.transport != transportWebSocket {
		return fmt.Errorf("unknown transport '%s', must be '%s' or '%s'", af.transport, transportTCP, transportWebSocket)
	}
	return nil
}

// attach connects to the VM, retrying while the VM is not reachable yet.
func (af *attachFlags) attach(ctx context.Context, log logr.Logger) (*jdwp.Client, error) {
	if err := af.validate(); err != nil {
		return nil, err
	}

	config := jdwp.ClientConfig{
		HandshakeTimeout: af.handshakeTimeout,
		Logger:           log.WithName("client"),
	}
	if af.profilePath != "" {
		profile, profileErr := jdwp.LoadProfile(af.profilePath)
		if profileErr != nil {
			return nil, profileErr
		}
		config.Profile = profile
	}

	attachCtx, cancel := context.WithTimeout(ctx, af.attachTimeout)
	defer cancel()

	attempt := 0
	client, err := resiliency.RetryGetExponential(attachCtx, func() (*jdwp.Client, error) {
		attempt++
		t, dialErr := af.dial(attachCtx)
		if dialErr != nil {
			log.V(1).Info("VM is not reachable yet", "Address", af.address, "Attempt", attempt, "Error", dialErr.Error())
			return nil, dialErr
		}

		c, attachErr := jdwp.Attach(attachCtx, t, config)
		if errors.Is(attachErr, jdwp.ErrHandshakeFailed) {
			// The peer is not a JDWP VM.
			return nil, resiliency.Permanent(attachErr)
		}
		return c, attachErr
	})
	if err != nil {
		return nil, fmt.Errorf("could not attach to the VM at '%s': %w", af.address, err)
	}

	log.V(1).Info("Attached to VM", "Address", af.address, "Session", client.Session().ID())
	return client, nil
}

func (af *attachFlags) dial(ctx context.Context) (jdwp.Transport, error) {
	if af.transport == transportWebSocket {
		return jdwp.DialWebSocket(ctx, af.address)
	}
	return jdwp.DialTCP(ctx, af.address)
}
