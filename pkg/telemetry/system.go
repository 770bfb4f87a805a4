/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type TelemetrySystem struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	spanExporter   sdktrace.SpanExporter
	metricExporter sdkmetric.Exporter
}

// NewTelemetrySystem installs global tracer and meter providers for the process.
// Telemetry is written to the diagnostics log folder when diagnostics logging is set to debug,
// and discarded otherwise.
func NewTelemetrySystem(name string) (TelemetrySystem, error) {
	spanExp, err := newTraceExporter(name)
	if err != nil {
		return TelemetrySystem{}, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewSuppressIfSuccessfulSpanProcessor(sdktrace.NewBatchSpanProcessor(spanExp))),
	)

	metricExp, err := newMetricExporter(name)
	if err != nil {
		return TelemetrySystem{}, errors.Join(err, tp.Shutdown(context.Background()))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(1*time.Minute)),
		),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return TelemetrySystem{
		TracerProvider: tp,
		MeterProvider:  mp,
		spanExporter:   spanExp,
		metricExporter: metricExp,
	}, nil
}

func (ts TelemetrySystem) Shutdown(ctx context.Context) error {
	return errors.Join(
		ts.TracerProvider.Shutdown(ctx),
		ts.MeterProvider.Shutdown(ctx),
		ts.spanExporter.Shutdown(ctx),
		ts.metricExporter.Shutdown(ctx),
	)
}
