package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedBackoff time.Duration

func (b fixedBackoff) Next(int) time.Duration { return time.Duration(b) }

type retried struct {
	id    string
	delay time.Duration
	cause string
}

type fakeRepo struct {
	mu        sync.Mutex
	due       []queue.Task
	pickErr   error
	completed []string
	retried   []retried
	parked    []string
}

func (f *fakeRepo) Enqueue(context.Context, queue.Kind, []byte, time.Duration) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeRepo) ChangeDelay(context.Context, string, time.Duration) error { return nil }
func (f *fakeRepo) Remove(context.Context, string) error                     { return nil }
func (f *fakeRepo) UpdatePayload(context.Context, string, []byte) error      { return nil }

func (f *fakeRepo) PickDue(_ context.Context, batch int, _ time.Duration) ([]queue.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	n := min(batch, len(f.due))
	out := f.due[:n]
	f.due = f.due[n:]
	return out, nil
}

func (f *fakeRepo) Complete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeRepo) Retry(_ context.Context, id string, delay time.Duration, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, retried{id: id, delay: delay, cause: cause})
	return nil
}

func (f *fakeRepo) Park(_ context.Context, id string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parked = append(f.parked, id)
	return nil
}

func (f *fakeRepo) snapshot() ([]string, []retried, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.completed), slices.Clone(f.retried), slices.Clone(f.parked)
}

func TestTick_CompletesRetriesAndParks(t *testing.T) {
	repo := &fakeRepo{due: []queue.Task{
		{ID: "ok", Kind: queue.KindScheduled, Attempts: 1, Payload: []byte("ok")},
		{ID: "flaky", Kind: queue.KindScheduled, Attempts: 2, Payload: []byte("flaky")},
		{ID: "dead", Kind: queue.KindTriggered, Attempts: 3, Payload: []byte("dead")},
	}}
	failing := map[string]bool{"flaky": true, "dead": true}
	handle := func(_ context.Context, _ queue.Kind, payload []byte) error {
		if failing[string(payload)] {
			return errors.New("handler failed")
		}
		return nil
	}

	r := NewRunner(zap.NewNop(), repo, handle, Config{BatchSize: 10, MaxAttempts: 3}).WithBackoff(fixedBackoff(time.Minute))

	picked, ok := r.tick(context.Background())
	assert.Equal(t, 3, picked)
	assert.Equal(t, 1, ok)

	completed, retries, parked := repo.snapshot()
	assert.Equal(t, []string{"ok"}, completed)
	require.Len(t, retries, 1)
	assert.Equal(t, retried{id: "flaky", delay: time.Minute, cause: "handler failed"}, retries[0])
	assert.Equal(t, []string{"dead"}, parked)
}

func TestTick_PickError(t *testing.T) {
	repo := &fakeRepo{pickErr: errors.New("db down")}
	r := NewRunner(zap.NewNop(), repo, func(context.Context, queue.Kind, []byte) error { return nil }, Config{})

	picked, ok := r.tick(context.Background())
	assert.Zero(t, picked)
	assert.Zero(t, ok)
}

func TestTick_RespectsBatchSize(t *testing.T) {
	repo := &fakeRepo{due: []queue.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	r := NewRunner(zap.NewNop(), repo, func(context.Context, queue.Kind, []byte) error { return nil }, Config{BatchSize: 2})

	picked, _ := r.tick(context.Background())
	assert.Equal(t, 2, picked)
	picked, _ = r.tick(context.Background())
	assert.Equal(t, 1, picked)
}

func TestTick_HandlerTimeout(t *testing.T) {
	repo := &fakeRepo{due: []queue.Task{{ID: "slow", Attempts: 1}}}
	r := NewRunner(zap.NewNop(), repo, func(ctx context.Context, _ queue.Kind, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	}, Config{HandlerTimeout: 20 * time.Millisecond}).WithBackoff(fixedBackoff(time.Second))

	_, ok := r.tick(context.Background())
	assert.Zero(t, ok)

	_, retries, _ := repo.snapshot()
	require.Len(t, retries, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), retries[0].cause)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := &fakeRepo{due: []queue.Task{{ID: "a"}}}
	r := NewRunner(zap.NewNop(), repo, func(context.Context, queue.Kind, []byte) error { return nil },
		Config{Workers: 2, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		completed, _, _ := repo.snapshot()
		return len(completed) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
