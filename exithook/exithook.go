// Package exithook runs registered cleanups when the process shuts down.
//
// Go has no exit hooks, so shutdown must be routed here: call Run from main
// (typically deferred) or install NotifyOnSignal to run the hooks on SIGINT
// or SIGTERM. Nothing runs on a hard kill.
package exithook

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"kv-capacity/internal/logx"
)

// Default is the process-wide registry.
var Default = New(logx.NewLogger(os.Stderr))

// Registry holds cleanups to run at shutdown. Each cleanup runs at most once
// through the registry; failures and panics are logged, never propagated.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	closers map[uint64]io.Closer
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Registry {
	return &Registry{
		closers: make(map[uint64]io.Closer),
		log:     log,
	}
}

// Handle identifies one registration.
type Handle struct {
	registry *Registry
	id       uint64
}

// Register adds c to the cleanups run by Run.
func (r *Registry) Register(c io.Closer) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.closers[r.next] = c
	return &Handle{registry: r, id: r.next}
}

// Unregister removes the cleanup. It is safe to call more than once and
// after Run.
func (h *Handle) Unregister() {
	if h == nil || h.registry == nil {
		return
	}
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	delete(h.registry.closers, h.id)
}

// Len returns the number of pending cleanups.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.closers)
}

// Run closes every registered closer and clears the registry.
func (r *Registry) Run() {
	r.mu.Lock()
	closers := r.closers
	r.closers = make(map[uint64]io.Closer)
	r.mu.Unlock()

	if len(closers) == 0 {
		return
	}
	r.log.Debug().Int("hooks", len(closers)).Msg("running exit hooks")
	for id, c := range closers {
		if err := r.runOne(c); err != nil {
			r.log.Warn().Err(err).Uint64("hook", id).Msg("exit hook failed")
		}
	}
}

func (r *Registry) runOne(c io.Closer) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return c.Close()
}

// NotifyOnSignal runs the registry when one of sigs (SIGINT and SIGTERM if
// none are given) arrives, then calls exit. The returned stop function
// detaches the handler without running it.
func (r *Registry) NotifyOnSignal(ctx context.Context, exit func(code int), sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if exit == nil {
		exit = os.Exit
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			r.log.Info().Str("signal", sig.String()).Msg("shutting down")
			r.Run()
			exit(1)
		case <-ctx.Done():
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
