package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) TryLock(context.Context) (Unlock, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	f.held = true
	return func(context.Context) error {
		f.held = false
		f.releases++
		return nil
	}, true, nil
}

type testJob struct {
	name string
	err  error
	runs int
	hook func()
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs++
	if j.hook != nil {
		j.hook()
	}
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	ok := &testJob{name: "draft-retention"}
	bad := &testJob{name: "coupon-usage-reconciliation", err: errors.New("boom")}
	lock := &fakeLock{}

	err := newTestService(t, lock, bad, ok).RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "coupon-usage-reconciliation: boom") {
		t.Fatalf("expected combined failure, got %v", err)
	}
	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("runs ok=%d bad=%d", ok.runs, bad.runs)
	}
	if lock.held || lock.releases != 1 {
		t.Fatal("lock not released after the cycle")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "draft-retention"}
	if err := newTestService(t, &fakeLock{held: true}, job).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("job ran without the lock")
	}
}

func TestRunOnceReturnsLockError(t *testing.T) {
	job := &testJob{name: "draft-retention"}
	lockErr := errors.New("redis unavailable")
	if err := newTestService(t, &fakeLock{err: lockErr}, job).RunOnce(context.Background()); !errors.Is(err, lockErr) {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestRunOnceStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &testJob{name: "first", hook: cancel}
	second := &testJob{name: "second"}
	lock := &fakeLock{}

	err := newTestService(t, lock, first, second).RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if second.runs != 0 {
		t.Fatal("second job should not start after cancel")
	}
	if lock.releases != 1 {
		t.Fatal("lock must be released on cancel")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &testJob{name: "only"}
	job.hook = cancel

	if err := newTestService(t, &fakeLock{}, job).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected an immediate first cycle, got %d runs", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected missing lock error")
	}
}
