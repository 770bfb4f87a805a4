/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/microsoft/jdwp/internal/jdwp"
	"github.com/microsoft/jdwp/pkg/logger"
)

const disposeTimeout = 5 * time.Second

type eventsFlags struct {
	attachFlags
	kinds        []string
	suspend      string
	classMatch   string
	classExclude string
}

// eventOutput is one line of the events command output.
type eventOutput struct {
	Kind          string `json:"kind"`
	RequestID     int32  `json:"requestID"`
	SuspendPolicy string `json:"suspendPolicy"`
	Thread        uint64 `json:"thread,omitempty"`
	Location      string `json:"location,omitempty"`
	Class         uint64 `json:"class,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Status        int32  `json:"status,omitempty"`
	Field         uint64 `json:"field,omitempty"`
	Exception     string `json:"exception,omitempty"`
	CatchLocation string `json:"catchLocation,omitempty"`
	Object        string `json:"object,omitempty"`
	Value         string `json:"value,omitempty"`
	Timeout       int64  `json:"timeout,omitempty"`
	TimedOut      bool   `json:"timedOut,omitempty"`
}

func NewEventsCommand(log *logger.Logger) (*cobra.Command, error) {
	flags := &eventsFlags{}

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Streams the events a VM reports",
		Long: `Attaches to a VM, registers an event request for every --kind, and prints the reported events
as JSON lines until interrupted or until the VM disconnects.

When events suspend the VM (--suspend other than 'none'), the VM is resumed after the events are printed.`,
		Example: `  jdwpctl events --address localhost:5005 --kind class_prepare --kind thread_start
  jdwpctl events --address localhost:5005 --kind exception --class-match 'com.example.*' --suspend all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return streamEvents(cmd, flags, log)
		},
	}

	flags.attachFlags.addTo(eventsCmd.Flags())
	eventsCmd.Flags().StringArrayVarP(&flags.kinds, "kind", "k", nil, "Event kind to request, such as class_prepare or thread_start (can be repeated)")
	eventsCmd.Flags().StringVar(&flags.suspend, "suspend", "none", "Suspend policy of the requests: 'none', 'event_thread', or 'all'")
	eventsCmd.Flags().StringVar(&flags.classMatch, "class-match", "", "Only report events for classes matching the pattern (e.g. 'java.lang.*'). Applies to the event kinds that support class filters")
	eventsCmd.Flags().StringVar(&flags.classExclude, "class-exclude", "", "Do not report events for classes matching the pattern. Applies to the event kinds that support class filters")

	return eventsCmd, nil
}

type eventRequest struct {
	kind      jdwp.EventKind
	modifiers []jdwp.Modifier
}

func (ef *eventsFlags) requests() ([]eventRequest, jdwp.SuspendPolicy, error) {
	if len(ef.kinds) == 0 {
		return nil, 0, fmt.Errorf("at least one --kind is required")
	}

	policy, policyErr := jdwp.ParseSuspendPolicy(ef.suspend)
	if policyErr != nil {
		return nil, 0, policyErr
	}

	var classFilters []jdwp.Modifier
	if ef.classMatch != "" {
		classFilters = append(classFilters, jdwp.ClassMatch(ef.classMatch))
	}
	if ef.classExclude != "" {
		classFilters = append(classFilters, jdwp.ClassExclude(ef.classExclude))
	}

	// Class filters apply to the kinds that support them.
	filtered := false
	requests := make([]eventRequest, 0, len(ef.kinds))
	for _, name := range ef.kinds {
		kind, kindErr := jdwp.ParseEventKind(name)
		if kindErr != nil {
			return nil, 0, kindErr
		}
		if !kind.Requestable() {
			return nil, 0, fmt.Errorf("events of kind %v cannot be requested", kind)
		}

		req := eventRequest{kind: kind}
		if len(classFilters) > 0 && jdwp.ModClassMatch.AllowedFor(kind) {
			req.modifiers = classFilters
			filtered = true
		}
		requests = append(requests, req)
	}

	if len(classFilters) > 0 && !filtered {
		return nil, 0, fmt.Errorf("class filters cannot be used with any of the requested event kinds")
	}

	return requests, policy, nil
}

func streamEvents(cmd *cobra.Command, flags *eventsFlags, rootLog *logger.Logger) error {
	log := rootLog.Logger.WithName("events")
	ctx := cmd.Context()

	requests, policy, err := flags.requests()
	if err != nil {
		return err
	}

	client, err := flags.attach(ctx, log)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	// Subscribe before registering, so no event is missed.
	events := client.Events(ctx)

	if setErr := setEventRequests(ctx, client, requests, policy, log); setErr != nil {
		disposeClient(ctx, client, log)
		return setErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for composite := range events {
		for i := range composite.Events {
			if encodeErr := enc.Encode(toEventOutput(composite.SuspendPolicy, &composite.Events[i])); encodeErr != nil {
				disposeClient(ctx, client, log)
				return encodeErr
			}
		}

		if composite.SuspendPolicy != jdwp.SuspendNone && ctx.Err() == nil {
			if resumeErr := client.Resume(ctx); resumeErr != nil && !jdwp.IsSessionError(resumeErr) {
				log.Error(resumeErr, "Could not resume the VM")
			}
		}
	}

	if ctx.Err() != nil {
		log.V(1).Info("Interrupted, detaching from the VM")
		disposeClient(ctx, client, log)
	}
	return nil
}

// setEventRequests registers all requests concurrently. If any request fails, the error of the first failure is returned.
func setEventRequests(ctx context.Context, client *jdwp.Client, requests []eventRequest, policy jdwp.SuspendPolicy, log logr.Logger) error {
	ids := make([]jdwp.RequestID, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		g.Go(func() error {
			id, setErr := client.SetEventRequest(gctx, req.kind, policy, req.modifiers...)
			if setErr != nil {
				return fmt.Errorf("could not request %v events: %w", req.kind, setErr)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, req := range requests {
		log.V(1).Info("Event request registered", "Kind", req.kind.String(), "RequestID", ids[i], "SuspendPolicy", policy.String())
	}
	return nil
}

func disposeClient(ctx context.Context, client *jdwp.Client, log logr.Logger) {
	disposeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disposeTimeout)
	defer cancel()
	if disposeErr := client.Dispose(disposeCtx); disposeErr != nil && !jdwp.IsSessionError(disposeErr) {
		log.Info("Could not dispose the debug session", "Error", disposeErr.Error())
	}
}

func toEventOutput(policy jdwp.SuspendPolicy, ev *jdwp.Event) eventOutput {
	return eventOutput{
		Kind:          ev.Kind.String(),
		RequestID:     int32(ev.RequestID),
		SuspendPolicy: policy.String(),
		Thread:        uint64(ev.Thread),
		Location:      locationString(ev.Location),
		Class:         uint64(ev.Class),
		Signature:     ev.Signature,
		Status:        ev.Status,
		Field:         uint64(ev.Field),
		Exception:     valueString(ev.Exception),
		CatchLocation: locationString(ev.CatchLocation),
		Object:        valueString(ev.Object),
		Value:         valueString(ev.Value),
		Timeout:       ev.Timeout,
		TimedOut:      ev.TimedOut,
	}
}

func locationString(l jdwp.Location) string {
	if l == (jdwp.Location{}) {
		return ""
	}
	return l.String()
}

func valueString(v jdwp.Value) string {
	if v.Tag == 0 {
		return ""
	}
	return v.String()
}
