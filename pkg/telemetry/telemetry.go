/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/microsoft/jdwp"

// Returns the tracer used by the protocol engine.
// Spans are dropped unless the host process installs a tracer provider (see NewTelemetrySystem).
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Returns the meter used by the protocol engine.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func CallWithTelemetry[TResult any](tracer trace.Tracer, spanName string, parentCtx context.Context, fn func(ctx context.Context) (TResult, error)) (TResult, error) {
	spanCtx, span := tracer.Start(parentCtx, spanName)
	defer span.End()

	result, err := fn(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// SuppressIfSuccessful marks the current span so that it is exported only if it ends with an error.
func SuppressIfSuccessful(ctx context.Context) {
	SetAttribute(ctx, suppressIfSuccessful, true)
}

func SetAttribute(ctx context.Context, key string, value interface{}) {
	span := trace.SpanFromContext(ctx)

	switch v := value.(type) {
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case uint32:
		span.SetAttributes(attribute.Int64(key, int64(v)))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	case string:
		span.SetAttributes(attribute.String(key, v))
	default:
		// This should never happen
		panic(fmt.Sprintf("unknown telemetry type for key %s", key))
	}
}
