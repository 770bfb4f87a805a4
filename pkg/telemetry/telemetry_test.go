/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSuppressIfSuccessful(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewSuppressIfSuccessfulSpanProcessor(recorder)))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	_, _ = CallWithTelemetry(tracer, "suppressed", context.Background(), func(ctx context.Context) (int, error) {
		SuppressIfSuccessful(ctx)
		return 1, nil
	})

	failErr := errors.New("boom")
	_, err := CallWithTelemetry(tracer, "failed", context.Background(), func(ctx context.Context) (int, error) {
		SuppressIfSuccessful(ctx)
		return 0, failErr
	})
	require.ErrorIs(t, err, failErr)

	_, _ = CallWithTelemetry(tracer, "regular", context.Background(), func(ctx context.Context) (string, error) {
		SetAttribute(ctx, "answer", 42)
		return "ok", nil
	})

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "failed", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "regular", ended[1].Name())
}

func TestSetAttributeRejectsUnknownTypes(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { SetAttribute(context.Background(), "bad", 1.5) })
}
