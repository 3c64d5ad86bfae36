package faq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cursala-gateway/internal/config"
)

type countingWarmer struct {
	calls atomic.Int32
	err   error
}

func (w *countingWarmer) Warm(context.Context) error {
	w.calls.Add(1)
	return w.err
}

func newTestRefresher(w Warmer, schedule string) *Refresher {
	cfg := &config.Config{FAQ: config.FAQConfig{RefreshSchedule: schedule}}
	return NewRefresher(w, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRefresher_Disabled(t *testing.T) {
	w := &countingWarmer{}
	r := newTestRefresher(w, "")

	require.NoError(t, r.Start())
	assert.False(t, r.Running())
	require.NoError(t, r.Stop(context.Background()))
	assert.Zero(t, w.calls.Load())
}

func TestRefresher_InvalidSchedule(t *testing.T) {
	r := newTestRefresher(&countingWarmer{}, "every tuesday")
	assert.Error(t, r.Start())
	assert.False(t, r.Running())
}

func TestRefresher_WarmsOnStartAndSchedule(t *testing.T) {
	w := &countingWarmer{}
	r := newTestRefresher(w, "@every 1s")

	require.NoError(t, r.Start())
	assert.True(t, r.Running())

	assert.Eventually(t, func() bool { return w.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	assert.False(t, r.Running())
}

func TestRefresher_WarmFailureKeepsRunning(t *testing.T) {
	w := &countingWarmer{err: errors.New("backend down")}
	r := newTestRefresher(w, "@every 1s")

	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	assert.Eventually(t, func() bool { return w.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, r.Running())
}

// blockingWarmer blocks every Warm until its context ends.
type blockingWarmer struct {
	started  chan struct{}
	returned atomic.Bool
}

func (w *blockingWarmer) Warm(ctx context.Context) error {
	select {
	case w.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	w.returned.Store(true)
	return ctx.Err()
}

func TestRefresher_StopCancelsWarmUp(t *testing.T) {
	w := &blockingWarmer{started: make(chan struct{}, 1)}
	r := newTestRefresher(w, "@every 1h")

	require.NoError(t, r.Start())
	select {
	case <-w.started:
	case <-time.After(5 * time.Second):
		t.Fatal("warm-up did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	assert.True(t, w.returned.Load(), "Stop must wait for the warm-up to return")
}

func TestRefresher_Restart(t *testing.T) {
	w := &countingWarmer{}
	r := newTestRefresher(w, "@every 1h")

	require.NoError(t, r.Start())
	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	assert.True(t, r.Running())
	assert.Eventually(t, func() bool { return w.calls.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
}
