package exithook

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"kv-capacity/internal/logx"
)

type countingCloser struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (c *countingCloser) Close() error {
	c.calls.Add(1)
	if c.panic {
		panic("boom")
	}
	return c.err
}

func newTestRegistry(t *testing.T) *Registry {
	return New(logx.NewLogger(zerolog.NewTestWriter(t)))
}

func TestRunClosesEachOnce(t *testing.T) {
	r := newTestRegistry(t)
	first := &countingCloser{}
	second := &countingCloser{err: errors.New("remove failed")}
	r.Register(first)
	r.Register(second)
	require.Equal(t, 2, r.Len())

	r.Run()
	r.Run()

	require.Equal(t, int32(1), first.calls.Load())
	require.Equal(t, int32(1), second.calls.Load())
	require.Equal(t, 0, r.Len())
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry(t)
	c := &countingCloser{}
	h := r.Register(c)

	h.Unregister()
	h.Unregister()
	r.Run()

	require.Equal(t, int32(0), c.calls.Load())

	var nilHandle *Handle
	nilHandle.Unregister()
}

func TestRunRecoversPanics(t *testing.T) {
	r := newTestRegistry(t)
	bad := &countingCloser{panic: true}
	good := &countingCloser{}
	r.Register(bad)
	r.Register(good)

	require.NotPanics(t, r.Run)
	require.Equal(t, int32(1), bad.calls.Load())
	require.Equal(t, int32(1), good.calls.Load())
}

func TestNotifyOnSignal(t *testing.T) {
	r := newTestRegistry(t)
	c := &countingCloser{}
	r.Register(c)

	exited := make(chan int, 1)
	stop := r.NotifyOnSignal(context.Background(), func(code int) { exited <- code }, syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case code := <-exited:
		require.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("signal handler did not run")
	}
	require.Equal(t, int32(1), c.calls.Load())
}

func TestNotifyOnSignalStop(t *testing.T) {
	r := newTestRegistry(t)
	c := &countingCloser{}
	r.Register(c)

	stop := r.NotifyOnSignal(context.Background(), func(int) {}, syscall.SIGUSR2)
	stop()

	require.Equal(t, int32(0), c.calls.Load())
	require.Equal(t, 1, r.Len())
}
