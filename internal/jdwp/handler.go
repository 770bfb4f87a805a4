/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// CommandMiddleware wraps a command handler with behavior shared by many commands.
type CommandMiddleware func(next CommandHandler) CommandHandler

// ChainHandler applies the middleware to the handler. The first middleware is the outermost one.
func ChainHandler(handler CommandHandler, middleware ...CommandMiddleware) CommandHandler {
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			handler = middleware[i](handler)
		}
	}
	return handler
}

// RequireCapabilities rejects commands that need a capability missing from the current grant.
// The rejection is answered with NOT_IMPLEMENTED.
func RequireCapabilities(profile *Profile, granted func() Capabilities) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx context.Context, p *Packet) ([]byte, error) {
			if err := profile.CheckCommand(granted(), p.Key()); err != nil {
				return nil, err
			}
			return next(ctx, p)
		}
	}
}

// LogCommands logs every handled command at verbosity level 2.
func LogCommands(log logr.Logger) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx context.Context, p *Packet) ([]byte, error) {
			log.V(2).Info("Command received", "ID", p.ID, "Command", p.Key().String(), "Length", len(p.Data))
			return next(ctx, p)
		}
	}
}

// decodeData decodes packet data with fn and reports the first decoding error.
// Unread trailing bytes are an error too.
func decodeData(sizes IDSizes, data []byte, fn func(r *Reader)) error {
	r := NewReader(data, sizes)
	fn(r)
	if err := r.Err(); err != nil {
		return err
	}
	if r.Remaining() > 0 {
		return fmt.Errorf("%d unexpected trailing bytes: %w", r.Remaining(), errIllegalArgument)
	}
	return nil
}

// encodeData encodes packet data with fn.
func encodeData(sizes IDSizes, fn func(w *Writer)) ([]byte, error) {
	w := NewWriter(sizes)
	fn(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Data(), nil
}
