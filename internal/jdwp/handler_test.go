/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/jdwp/pkg/testutil"
)

func TestLogCommands(t *testing.T) {
	t.Parallel()

	sink := &testutil.MockLoggerSink{}
	sink.On("Init", mock.Anything).Return()
	sink.On("Enabled", 2).Return(true)
	sink.On("Info", 2, "Command received", []interface{}{"ID", uint32(7), "Command", CmdVMVersion.String(), "Length", 3}).Return()

	called := false
	handler := ChainHandler(func(_ context.Context, _ *Packet) ([]byte, error) {
		called = true
		return []byte{1}, nil
	}, LogCommands(logr.New(sink)))

	data, err := handler(context.Background(), NewCommandPacket(7, CmdVMVersion, []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)
	assert.True(t, called)
	sink.AssertExpectations(t)
}

func TestLogCommandsRespectsVerbosity(t *testing.T) {
	t.Parallel()

	sink := &testutil.MockLoggerSink{}
	sink.On("Init", mock.Anything).Return()
	sink.On("Enabled", 2).Return(false)

	handler := ChainHandler(func(_ context.Context, _ *Packet) ([]byte, error) {
		return nil, nil
	}, LogCommands(logr.New(sink)))

	_, err := handler(context.Background(), NewCommandPacket(1, CmdVMResume, nil))
	require.NoError(t, err)
	sink.AssertNotCalled(t, "Info", mock.Anything, mock.Anything, mock.Anything)
}

func TestChainHandlerSkipsNilMiddleware(t *testing.T) {
	t.Parallel()

	var order []string
	tag := func(name string) CommandMiddleware {
		return func(next CommandHandler) CommandHandler {
			return func(ctx context.Context, p *Packet) ([]byte, error) {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}

	handler := ChainHandler(func(_ context.Context, _ *Packet) ([]byte, error) {
		order = append(order, "handler")
		return nil, nil
	}, tag("outer"), nil, tag("inner"))

	_, err := handler(context.Background(), NewCommandPacket(1, CmdVMResume, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
