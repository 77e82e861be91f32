package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SachikoNitta/factnet/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrSchedulerClosed = errors.New("scheduler is closed")
	ErrWaitTimeout     = errors.New("timed out waiting for detection jobs")
	ErrJobCancelled    = errors.New("job cancelled by shutdown")
)

const defaultWorkers = 4

// JobFunc is the body of a detection job, invoked by a scheduler worker with
// the id of the fact to process.
type JobFunc func(ctx context.Context, factID string) error

// SchedulerStats are cumulative counters over the scheduler's lifetime.
type SchedulerStats struct {
	Submitted int `json:"submitted"`
	Done      int `json:"done"`
	Failed    int `json:"failed"`
	InFlight  int `json:"in_flight"`
}

// Scheduler owns the background worker pool for detection jobs. Submission
// never blocks; concurrency is bounded by the worker count; AwaitAll is the
// sole barrier between callers and in-flight work.
type Scheduler struct {
	run    JobFunc
	logger *zap.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []string
	jobs        map[string]*domain.DetectionJob
	outstanding int
	closed      bool
	stats       SchedulerStats

	wg sync.WaitGroup
}

// NewScheduler starts a pool of workers running jobs via run. workers <= 0
// falls back to the default pool size.
func NewScheduler(workers int, run JobFunc, logger *zap.Logger) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	s := &Scheduler{
		run:    run,
		logger: logger,
		jobs:   make(map[string]*domain.DetectionJob),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	logger.Info("detection scheduler started", zap.Int("workers", workers))
	return s
}

// Submit enqueues a detection job for factID and returns immediately. A
// second submit while a job for the same fact is still live is a no-op, so a
// fact is never processed by two workers at once.
func (s *Scheduler) Submit(factID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if job, ok := s.jobs[factID]; ok && !job.Status.Terminal() {
		return nil
	}

	s.jobs[factID] = &domain.DetectionJob{FactID: factID, Status: domain.JobPending}
	s.queue = append(s.queue, factID)
	s.outstanding++
	s.stats.Submitted++
	s.cond.Signal()
	return nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		factID := s.queue[0]
		s.queue = s.queue[1:]
		job := s.jobs[factID]
		job.Status = domain.JobRunning
		job.Attempts++
		s.mu.Unlock()

		err := s.run(context.Background(), factID)

		s.mu.Lock()
		if err != nil {
			job.Status = domain.JobFailed
			job.Err = err.Error()
			s.stats.Failed++
			s.logger.Warn("detection job failed",
				zap.String("fact_id", factID),
				zap.Int("attempts", job.Attempts),
				zap.Error(err))
		} else {
			job.Status = domain.JobDone
			s.stats.Done++
		}
		s.outstanding--
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// AwaitAll blocks until every job submitted before quiescence is observed has
// reached a terminal state, or until ctx expires. A timeout is purely an
// observation timeout: jobs keep running. Terminal jobs observed by a
// successful barrier are garbage-collected from the tracker; the aggregate
// counters in Stats survive.
func (s *Scheduler) AwaitAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	stop := context.AfterFunc(ctx, func() {
		// Take the lock so a waiter between its ctx check and cond.Wait
		// cannot miss the wakeup.
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	// Jobs submitted while waiting extend the wait; the race between a late
	// submit and quiescence resolves toward waiting longer.
	for s.outstanding > 0 {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %d jobs still in flight", ErrWaitTimeout, s.outstanding)
		}
		s.cond.Wait()
	}

	for id, job := range s.jobs {
		if job.Status.Terminal() {
			delete(s.jobs, id)
		}
	}
	return nil
}

// Job returns a copy of the tracked job for factID, if still tracked.
func (s *Scheduler) Job(factID string) (domain.DetectionJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[factID]
	if !ok {
		return domain.DetectionJob{}, false
	}
	return *job, true
}

func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.InFlight = s.outstanding
	return stats
}

// Shutdown stops intake, fails jobs still pending, and waits for running
// jobs to finish. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	for _, factID := range s.queue {
		job := s.jobs[factID]
		job.Status = domain.JobFailed
		job.Err = ErrJobCancelled.Error()
		s.stats.Failed++
		s.outstanding--
	}
	cancelled := len(s.queue)
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("detection scheduler stopped", zap.Int("cancelled", cancelled))
}
