/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package main provides a synthetic VM for debugging tests.
// It serves JDWP debuggers and reports made-up thread and class events at a fixed pace.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/microsoft/jdwp/internal/jdwp"
	"github.com/microsoft/jdwp/pkg/logger"
)

type debuggeeFlagData struct {
	address   string
	websocket bool
	interval  time.Duration
}

var (
	flags    debuggeeFlagData
	exitCode = make(chan int32, 1)
)

func main() {
	log := logger.New("debuggee")
	defer log.BeforeExit(func(value interface{}) { os.Exit(3) })

	if err := newMainCommand(log).Execute(); err != nil {
		log.Flush()
		os.Exit(1)
	}

	select {
	case code := <-exitCode:
		log.Flush()
		os.Exit(int(code))
	default:
	}
}

func newMainCommand(log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debuggee",
		Short: "A synthetic VM that serves JDWP debuggers",
		Long: `A synthetic VM that serves JDWP debuggers, one at a time.

Every --interval it starts a thread, prepares a class in the com.example package, and ends the thread.
It exits when a debugger sends VirtualMachine.Exit, or when SIGTERM or SIGINT is received.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMain(log.Logger)
		},
		Args: cobra.NoArgs,
	}

	cmd.Flags().StringVarP(&flags.address, "address", "a", "127.0.0.1:5005", "The address to listen on")
	cmd.Flags().BoolVar(&flags.websocket, "websocket", false, "Serve debuggers over WebSocket (at ws://<address>/) instead of TCP")
	cmd.Flags().DurationVarP(&flags.interval, "interval", "i", time.Second, "How often to report a new batch of events")
	log.AddLevelFlag(cmd.Flags())

	return cmd
}

func runMain(log logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vm := &syntheticVM{events: make(chan jdwp.Event, 64), exit: cancel, log: log}
	agent, err := jdwp.NewAgent(vm, jdwp.AgentConfig{Logger: log.WithName("agent")})
	if err != nil {
		return err
	}

	go vm.run(ctx, flags.interval)

	if flags.websocket {
		return serveWebSocket(ctx, agent, log)
	}
	return serveTCP(ctx, agent, log)
}

func serveTCP(ctx context.Context, agent *jdwp.Agent, log logr.Logger) error {
	listener, err := jdwp.ListenTCP(flags.address)
	if err != nil {
		return err
	}
	defer listener.Close()
	log.Info("Listening for debuggers", "Address", listener.Addr().String())

	for {
		t, acceptErr := listener.Accept(ctx)
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return acceptErr
		}
		if serveErr := agent.Serve(ctx, t); serveErr != nil && ctx.Err() == nil {
			log.Info("Debug session ended with an error", "Error", serveErr.Error())
		}
	}
}

func serveWebSocket(ctx context.Context, agent *jdwp.Agent, log logr.Logger) error {
	server := &http.Server{
		Addr: flags.address,
		Handler: jdwp.WebSocketHandler(func(r *http.Request, t jdwp.Transport) {
			if serveErr := agent.Serve(ctx, t); serveErr != nil && ctx.Err() == nil {
				log.Info("Debug session ended with an error", "Error", serveErr.Error())
			}
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Info("Listening for debuggers", "Address", fmt.Sprintf("ws://%s/", flags.address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type syntheticVM struct {
	events chan jdwp.Event
	exit   context.CancelFunc
	log    logr.Logger
}

func (vm *syntheticVM) HandleCommand(ctx context.Context, p *jdwp.Packet) ([]byte, error) {
	session, _ := jdwp.SessionFromContext(ctx)
	switch p.Key() {
	case jdwp.CmdVMVersion:
		w := session.NewWriter()
		w.Utf8String("Synthetic VM for JDWP debugging tests").Int32(17).Int32(0).Utf8String("17.0").Utf8String("debuggee")
		return w.Data(), w.Err()

	case jdwp.CmdVMExit:
		r := session.NewReader(p.Data)
		code := r.Int32()
		if err := r.Err(); err != nil {
			return nil, err
		}
		select {
		case exitCode <- code:
		default:
		}
		vm.exit()
		return nil, nil

	case jdwp.CmdVMResume, jdwp.CmdVMSuspend, jdwp.CmdVMDispose:
		return nil, nil

	default:
		return nil, &jdwp.Error{Code: jdwp.ErrNotImplemented, CommandSet: p.CommandSet, Command: p.Command}
	}
}

func (vm *syntheticVM) Suspend(_ context.Context, policy jdwp.SuspendPolicy, thread jdwp.ThreadID) error {
	vm.log.V(1).Info("Suspending", "SuspendPolicy", policy.String(), "Thread", thread)
	return nil
}

func (vm *syntheticVM) Capabilities() []string {
	return []string{"can_redefine_classes", "can_request_vm_death_event", "can_get_source_debug_extension"}
}

func (vm *syntheticVM) Events() <-chan jdwp.Event {
	return vm.events
}

func (vm *syntheticVM) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	vm.report(ctx, jdwp.Event{Kind: jdwp.EventVMStart, Thread: 1})

	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		thread := jdwp.ThreadID(100 + n)
		class := jdwp.ReferenceTypeID(1000 + n)
		name := fmt.Sprintf("com.example.Generated%d", n)
		vm.report(ctx, jdwp.Event{Kind: jdwp.EventThreadStart, Thread: thread})
		vm.report(ctx, jdwp.Event{
			Kind:       jdwp.EventClassPrepare,
			Thread:     thread,
			RefTypeTag: jdwp.TypeTagClass,
			Class:      class,
			Signature:  fmt.Sprintf("Lcom/example/Generated%d;", n),
			Status:     7, // VERIFIED | PREPARED | INITIALIZED
			ClassName:  name,
			SourceName: fmt.Sprintf("Generated%d.java", n),
		})
		vm.report(ctx, jdwp.Event{Kind: jdwp.EventThreadDeath, Thread: thread})
	}
}

// Events are dropped while the feed is full, e.g. when no debugger is attached.
func (vm *syntheticVM) report(ctx context.Context, ev jdwp.Event) {
	select {
	case vm.events <- ev:
	case <-ctx.Done():
	default:
		vm.log.V(1).Info("Event dropped", "Event", ev.String())
	}
}
