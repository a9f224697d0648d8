package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHotplugDebouncesHidraw(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	h := &Hotplug{
		Dir:      dir,
		Debounce: 80 * time.Millisecond,
		Rescan:   func() { calls.Add(1) },
		Log:      zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()
	// let the watcher start
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ttyS0"), nil, 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hidraw"+string(rune('0'+i))), nil, 0o600))
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.Remove(filepath.Join(dir, "hidraw1")))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestHotplugPoll(t *testing.T) {
	var calls atomic.Int32
	h := &Hotplug{
		Dir:      t.TempDir(),
		Debounce: time.Second,
		Poll:     20 * time.Millisecond,
		Rescan:   func() { calls.Add(1) },
		Log:      zap.NewNop(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestHotplugMissingDir(t *testing.T) {
	h := &Hotplug{Dir: filepath.Join(t.TempDir(), "nope"), Rescan: func() {}, Log: zap.NewNop()}
	assert.Error(t, h.Run(context.Background()))
}
