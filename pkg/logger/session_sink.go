/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	stdslices "slices"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// Key for the debug session ID. When a logger with a session sink enabled gets this key as the first argument to WithValues,
	// the second argument is treated as a session ID, and a copy of every subsequent log entry is written
	// to a separate log file for that session (session-<session_id>.log).
	// The key/value pair is also passed on to the regular log output.
	SESSION_LOG_STREAM_ID = "Session"
)

var (
	sessionLoggerLock     = &sync.Mutex{}
	sessionLoggerDisabled = &atomic.Bool{}
	sessionSinks          = map[string]*sessionFileSink{}
	sessionLogFolder      = filepath.Join(os.TempDir(), "jdwp", "sessions")
)

type sessionFileSink struct {
	file   *os.File
	logger logr.Logger
	flush  func()
}

func GetSessionLogPath(sessionId string) string {
	if sessionId == "" {
		return ""
	}

	return filepath.Join(sessionLogFolder, fmt.Sprintf("session-%s.log", sessionId))
}

// ReleaseSessionLog flushes and closes the log file of a session that has ended.
func ReleaseSessionLog(sessionId string) {
	sessionLoggerLock.Lock()
	defer sessionLoggerLock.Unlock()

	if sink, found := sessionSinks[sessionId]; found {
		sink.flush()
		// Best effort
		_ = sink.file.Close()
		delete(sessionSinks, sessionId)
	}
}

func ReleaseAllSessionLogs() {
	sessionLoggerLock.Lock()
	defer sessionLoggerLock.Unlock()

	sessionLoggerDisabled.Store(true)

	wg := &sync.WaitGroup{}
	wg.Add(len(sessionSinks))

	for _, sink := range sessionSinks {
		go func(sink *sessionFileSink) {
			defer wg.Done()
			sink.flush()
			_ = sink.file.Close()
		}(sink)
	}

	sessionSinks = map[string]*sessionFileSink{}

	wg.Wait()
}

type sessionSink struct {
	name        string
	sessionId   string
	values      []any
	atomicLevel zap.AtomicLevel
	innerSink   logr.LogSink
}

func newSessionSink(atomicLevel zap.AtomicLevel, innerSink logr.LogSink) *sessionSink {
	sink := &sessionSink{
		atomicLevel: zap.NewAtomicLevel(),
		innerSink:   innerSink,
	}
	sink.atomicLevel.SetLevel(atomicLevel.Level())

	return sink
}

func flushSessionSinks() {
	sessionLoggerLock.Lock()
	defer sessionLoggerLock.Unlock()

	for _, sink := range sessionSinks {
		sink.flush()
	}
}

// Enabled implements logr.LogSink.
func (s *sessionSink) Enabled(level int) bool {
	return s.innerSink.Enabled(level)
}

// Error implements logr.LogSink.
func (s *sessionSink) Error(err error, msg string, keysAndValues ...any) {
	s.innerSink.Error(err, msg, keysAndValues...)

	if sink := s.getSink(); sink != nil {
		sink.logger.WithValues(s.values...).GetSink().Error(err, msg, keysAndValues...)
	}
}

// Info implements logr.LogSink.
func (s *sessionSink) Info(level int, msg string, keysAndValues ...any) {
	s.innerSink.Info(level, msg, keysAndValues...)

	if sink := s.getSink(); sink != nil {
		sink.logger.WithValues(s.values...).GetSink().Info(level, msg, keysAndValues...)
	}
}

// Init implements logr.LogSink.
func (s *sessionSink) Init(info logr.RuntimeInfo) {
	s.innerSink.Init(info)
}

// WithName implements logr.LogSink.
func (s *sessionSink) WithName(name string) logr.LogSink {
	fullName := name
	if s.name != "" {
		fullName = s.name + "." + name
	}

	newSink := &sessionSink{
		name:        fullName,
		sessionId:   s.sessionId,
		values:      s.values,
		atomicLevel: zap.NewAtomicLevel(),
		innerSink:   s.innerSink.WithName(name),
	}
	newSink.atomicLevel.SetLevel(s.atomicLevel.Level())

	return newSink
}

// WithValues implements logr.LogSink.
func (s *sessionSink) WithValues(keysAndValues ...any) logr.LogSink {
	sessionId := s.sessionId
	values := stdslices.Clone(s.values)

	// Only the first key is checked, the same way callers attach the session ID.
	if len(keysAndValues) >= 2 && keysAndValues[0] == SESSION_LOG_STREAM_ID {
		sessionId = fmt.Sprint(keysAndValues[1])
		// The session file is named after the session, so the ID is not repeated in every entry.
		values = append(values, keysAndValues[2:]...)
	} else {
		values = append(values, keysAndValues...)
	}

	newSink := &sessionSink{
		name:        s.name,
		sessionId:   sessionId,
		values:      values,
		atomicLevel: zap.NewAtomicLevel(),
		innerSink:   s.innerSink.WithValues(keysAndValues...),
	}
	newSink.atomicLevel.SetLevel(s.atomicLevel.Level())

	return newSink
}

func (s *sessionSink) getSink() *sessionFileSink {
	if s.sessionId == "" || sessionLoggerDisabled.Load() {
		return nil
	}

	sessionLoggerLock.Lock()
	defer sessionLoggerLock.Unlock()

	if sessionLoggerDisabled.Load() {
		return nil
	}

	sink, found := sessionSinks[s.sessionId]
	if !found {
		var sinkErr error
		sink, sinkErr = s.newSessionFileSink()
		if sinkErr != nil {
			return nil
		}
		sessionSinks[s.sessionId] = sink
	}

	return sink
}

func (s *sessionSink) newSessionFileSink() (*sessionFileSink, error) {
	if _, statErr := os.Stat(sessionLogFolder); errors.Is(statErr, fs.ErrNotExist) {
		if mkdirErr := os.MkdirAll(sessionLogFolder, permissionOnlyOwnerReadWriteTraverse); mkdirErr != nil {
			return nil, mkdirErr
		}
	}

	file, err := os.OpenFile(GetSessionLogPath(s.sessionId), os.O_RDWR|os.O_CREATE|os.O_APPEND, permissionOnlyOwnerReadWrite)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if runtime.GOOS == "windows" {
		encoderConfig.LineEnding = "\r\n"
	}
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	zapLogger := zap.New(zapcore.NewCore(consoleEncoder, zapcore.Lock(file), s.atomicLevel))

	return &sessionFileSink{
		file:   file,
		logger: zapr.NewLogger(zapLogger).WithName(s.name),
		flush:  func() { _ = zapLogger.Sync() },
	}, nil
}

var _ logr.LogSink = (*sessionSink)(nil)
