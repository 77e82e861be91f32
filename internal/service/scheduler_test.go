package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SachikoNitta/factnet/internal/domain"
	"go.uber.org/zap"
)

func TestScheduler_SubmitAndAwait(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(2, func(ctx context.Context, factID string) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())
	defer s.Shutdown()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Submit(id); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.AwaitAll(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := runs.Load(); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
	stats := s.Stats()
	if stats.Submitted != 3 || stats.Done != 3 || stats.Failed != 0 || stats.InFlight != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestScheduler_AwaitAll_Empty(t *testing.T) {
	s := NewScheduler(1, func(ctx context.Context, factID string) error { return nil }, zap.NewNop())
	defer s.Shutdown()

	if err := s.AwaitAll(context.Background()); err != nil {
		t.Fatalf("expected immediate return with no jobs, got %v", err)
	}
}

func TestScheduler_FailedJobsCounted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScheduler(1, func(ctx context.Context, factID string) error {
		if factID == "bad" {
			return boom
		}
		return nil
	}, zap.NewNop())
	defer s.Shutdown()

	_ = s.Submit("good")
	_ = s.Submit("bad")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// A failed job still settles the barrier.
	if err := s.AwaitAll(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stats := s.Stats()
	if stats.Done != 1 || stats.Failed != 1 {
		t.Fatalf("expected 1 done and 1 failed, got %+v", stats)
	}
}

func TestScheduler_JobStatusLifecycle(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := NewScheduler(1, func(ctx context.Context, factID string) error {
		close(started)
		<-release
		return errors.New("expected failure")
	}, zap.NewNop())
	defer s.Shutdown()

	_ = s.Submit("a")
	<-started

	job, ok := s.Job("a")
	if !ok || job.Status != domain.JobRunning {
		t.Fatalf("expected running job, got %+v (tracked=%v)", job, ok)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", job.Attempts)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.AwaitAll(ctx)

	// Terminal jobs are garbage-collected by a successful barrier.
	if _, ok := s.Job("a"); ok {
		t.Fatal("expected job to be collected after AwaitAll")
	}
	if stats := s.Stats(); stats.Failed != 1 {
		t.Fatalf("expected failure to survive collection in stats, got %+v", stats)
	}
}

func TestScheduler_DuplicateLiveSubmitIsNoOp(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	s := NewScheduler(1, func(ctx context.Context, factID string) error {
		runs.Add(1)
		if runs.Load() == 1 {
			close(started)
			<-release
		}
		return nil
	}, zap.NewNop())
	defer s.Shutdown()

	_ = s.Submit("a")
	<-started
	// Same fact while its job is still running: dropped.
	_ = s.Submit("a")
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.AwaitAll(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := runs.Load(); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
	if stats := s.Stats(); stats.Submitted != 1 {
		t.Fatalf("expected 1 submission, got %+v", stats)
	}
}

func TestScheduler_ResubmitAfterTerminal(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(1, func(ctx context.Context, factID string) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = s.Submit("a")
	if err := s.AwaitAll(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_ = s.Submit("a")
	if err := s.AwaitAll(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := runs.Load(); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
}

func TestScheduler_AwaitAll_Timeout(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	s := NewScheduler(1, func(ctx context.Context, factID string) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, zap.NewNop())

	_ = s.Submit("slow")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.AwaitAll(ctx)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}

	// The job keeps running after the observation timeout.
	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := s.AwaitAll(waitCtx); err != nil {
		t.Fatalf("expected no error after release, got %v", err)
	}
	s.Shutdown()
}

func TestScheduler_Shutdown(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := NewScheduler(1, func(ctx context.Context, factID string) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop())

	_ = s.Submit("running")
	<-started
	_ = s.Submit("pending")

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not finish after running job completed")
	}

	// The queued job was failed, not run.
	stats := s.Stats()
	if stats.Done != 1 || stats.Failed != 1 {
		t.Fatalf("expected 1 done and 1 cancelled-as-failed, got %+v", stats)
	}
	job, ok := s.Job("pending")
	if !ok || job.Status != domain.JobFailed || job.Err != ErrJobCancelled.Error() {
		t.Fatalf("expected cancelled pending job, got %+v (tracked=%v)", job, ok)
	}

	if err := s.Submit("late"); !errors.Is(err, ErrSchedulerClosed) {
		t.Fatalf("expected ErrSchedulerClosed on submit, got %v", err)
	}
	if err := s.AwaitAll(context.Background()); !errors.Is(err, ErrSchedulerClosed) {
		t.Fatalf("expected ErrSchedulerClosed on await, got %v", err)
	}
}

func TestScheduler_ShutdownTwice(t *testing.T) {
	s := NewScheduler(1, func(ctx context.Context, factID string) error { return nil }, zap.NewNop())
	s.Shutdown()
	s.Shutdown()
}
