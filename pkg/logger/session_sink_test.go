/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestSessionId returns a session ID unique to this run, whose log file is released and removed when the test ends.
func newTestSessionId(t *testing.T, prefix string) string {
	sessionId := prefix + "-" + uuid.NewString()
	t.Cleanup(func() {
		ReleaseSessionLog(sessionId)
		_ = os.Remove(GetSessionLogPath(sessionId))
	})
	return sessionId
}

func TestSessionSink(t *testing.T) {
	t.Parallel()

	sessionId := newTestSessionId(t, "session-sink-test")
	expectedSessionFilePath := GetSessionLogPath(sessionId)

	logger := New("session-sink-log").WithSessionSink().WithName("session-sink-log")
	log := logger.Logger

	require.NoFileExists(t, expectedSessionFilePath)

	log = log.WithValues(SESSION_LOG_STREAM_ID, sessionId)
	log.Info("This is a test log entry", "Key1", "Value1")

	logger.Flush()

	require.FileExists(t, expectedSessionFilePath)
	contents, readErr := os.ReadFile(expectedSessionFilePath)
	require.NoError(t, readErr)

	require.Contains(t, string(contents), "This is a test log entry")
	require.Contains(t, string(contents), "{\"Key1\": \"Value1\"}")
}

func TestSessionSinkValues(t *testing.T) {
	t.Parallel()

	sessionId := newTestSessionId(t, "session-sink-values-test")
	otherSessionId := newTestSessionId(t, "session-sink-values-other-test")
	expectedSessionFilePath := GetSessionLogPath(sessionId)

	logger := New("session-sink-values-log").WithSessionSink().WithName("session-sink-values-log")
	log := logger.Logger

	require.NoFileExists(t, expectedSessionFilePath)

	log.Info("This entry belongs to no session")

	sessionLog := log.WithValues(SESSION_LOG_STREAM_ID, sessionId, "Key1", "Value1")
	sessionLog.Info("This is an entry with a session", "Key2", "Value2")
	sessionLog.Error(fmt.Errorf("error of some sort"), "This is an error record")

	log.WithValues(SESSION_LOG_STREAM_ID, otherSessionId).Info("This entry belongs to another session")

	logger.Flush()

	contents, readErr := os.ReadFile(expectedSessionFilePath)
	require.NoError(t, readErr)

	require.Contains(t, string(contents), "info\tsession-sink-values-log\tThis is an entry with a session\t{\"Key1\": \"Value1\", \"Key2\": \"Value2\"}")
	require.Contains(t, string(contents), "error\tsession-sink-values-log\tThis is an error record\t{\"Key1\": \"Value1\", \"error\": \"error of some sort\"}")
	require.NotContains(t, string(contents), "This entry belongs to no session")
	require.NotContains(t, string(contents), "This entry belongs to another session")
}

func TestMain(m *testing.M) {
	newFolder, err := os.MkdirTemp(os.TempDir(), "session-sink-test-")
	if err != nil {
		panic(err)
	}
	sessionLogFolder = newFolder

	code := m.Run()

	if code == 0 {
		_ = os.RemoveAll(newFolder)
	}

	os.Exit(code)
}
