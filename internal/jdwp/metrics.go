/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/microsoft/jdwp/pkg/telemetry"
)

// Instruments created from the global meter are forwarded to the provider installed later by the host process.
var (
	commandsSentCounter      = telemetry.NewInt64Counter(telemetry.Meter(), "jdwp.commands.sent", "Commands written to the peer")
	commandsHandledCounter   = telemetry.NewInt64Counter(telemetry.Meter(), "jdwp.commands.handled", "Commands received from the peer and handled")
	pendingRequestsCounter   = telemetry.NewInt64UpDownCounter(telemetry.Meter(), "jdwp.requests.pending", "Commands waiting for a reply")
	eventsDeliveredCounter   = telemetry.NewInt64Counter(telemetry.Meter(), "jdwp.events.delivered", "Events reported to the debugger in Event.Composite packets")
	eventsUnrequestedCounter = telemetry.NewInt64Counter(telemetry.Meter(), "jdwp.events.unrequested", "VM events that matched no event request")
)

func commandAttributes(key CommandKey) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("jdwp.command", key.String()))
}

func eventAttributes(kind EventKind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("jdwp.event", kind.String()))
}
