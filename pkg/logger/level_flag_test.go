/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToLevel(t *testing.T) {
	t.Parallel()

	level, err := StringToLevel("debug", zapcore.InfoLevel)
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, level)

	level, err = StringToLevel("3", zapcore.InfoLevel)
	require.NoError(t, err)
	require.Equal(t, zapcore.Level(-3), level)

	level, err = StringToLevel("0", zapcore.ErrorLevel)
	require.Error(t, err)
	require.Equal(t, zapcore.ErrorLevel, level)

	_, err = StringToLevel("chatty", zapcore.InfoLevel)
	require.Error(t, err)

	level, err = StringToLevel("Packets", zapcore.InfoLevel)
	require.NoError(t, err)
	require.Equal(t, PacketLevel, level)
	require.Equal(t, zapcore.Level(-2), level)

	_, err = StringToLevel("300", zapcore.InfoLevel)
	require.Error(t, err)
}

func TestLevelFlagSetsLevel(t *testing.T) {
	t.Parallel()

	var got zapcore.Level
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	levelVal := NewLevelFlagValue(func(level zapcore.Level) { got = level })
	fs.VarP(&levelVal, verbosityFlagName, verbosityFlagShortName, "")

	require.NoError(t, fs.Parse([]string{"-v=2"}))
	require.Equal(t, zapcore.Level(-2), got)
	require.Equal(t, "2", levelVal.String())
}
