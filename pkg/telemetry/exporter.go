/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/jdwp/pkg/logger"
)

func newTraceExporter(logName string) (sdktrace.SpanExporter, error) {
	file, err := openTelemetryFile("traces", logName)
	if err != nil || file == nil {
		return discardExporter{}, err
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(file))
}

func newMetricExporter(logName string) (sdkmetric.Exporter, error) {
	file, err := openTelemetryFile("metrics", logName)
	if err != nil || file == nil {
		return discardExporter{}, err
	}
	return stdoutmetric.New(stdoutmetric.WithWriter(file))
}

// Returns nil if telemetry should be discarded.
func openTelemetryFile(kind string, logName string) (*os.File, error) {
	logLevel, err := logger.GetDiagnosticsLogLevel()
	if err != nil || logLevel != zapcore.DebugLevel {
		return nil, nil
	}

	logFolder, err := logger.EnsureDiagnosticsLogsFolder()
	if err != nil {
		return nil, err
	}

	fileName := fmt.Sprintf("%s-%s-%d-%d.json", kind, logName, time.Now().Unix(), os.Getpid())
	return os.OpenFile(filepath.Join(logFolder, fileName), os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_TRUNC, 0600)
}

type discardExporter struct{}

func (discardExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (discardExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (discardExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (discardExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	return nil
}

func (discardExporter) ForceFlush(context.Context) error {
	return nil
}

func (discardExporter) Shutdown(ctx context.Context) error {
	return nil
}

var _ sdktrace.SpanExporter = discardExporter{}
var _ sdkmetric.Exporter = discardExporter{}
