package cleanup_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/internal/cleanup"
)

type fakeExpirer struct {
	mu      sync.Mutex
	befores []time.Time
	deleted int64
	err     error
}

func (f *fakeExpirer) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return f.deleted, f.err
}

func (f *fakeExpirer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.befores)
}

func TestJob_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expirer := &fakeExpirer{deleted: 4}
	var reported int64

	job := cleanup.New(expirer, time.Minute, 24*time.Hour,
		cleanup.WithNowFunc(func() time.Time { return now }),
		cleanup.WithOnDeleted(func(n int64) { reported = n }))

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.Equal(t, int64(4), reported)
	require.Equal(t, now.Add(-24*time.Hour), expirer.befores[0])
}

func TestJob_RunOnceError(t *testing.T) {
	job := cleanup.New(&fakeExpirer{err: errors.New("db gone")}, time.Minute, 0)
	_, err := job.RunOnce(context.Background())
	require.Error(t, err)
}

func TestJob_RunStopsOnCancel(t *testing.T) {
	expirer := &fakeExpirer{}
	job := cleanup.New(expirer, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	require.Eventually(t, func() bool { return expirer.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestJob_Disabled(t *testing.T) {
	expirer := &fakeExpirer{}
	require.NoError(t, cleanup.New(expirer, 0, 0).Run(context.Background()))
	require.Zero(t, expirer.calls())
}
