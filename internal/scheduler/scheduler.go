package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/util"
)

// HandlerFunc is one scheduled unit of work.
type HandlerFunc func(ctx context.Context) error

type job struct {
	name       string
	every      time.Duration // interval jobs; zero for daily
	daily      bool
	hour       int
	minute     int
	handler    HandlerFunc
	nextDue    time.Time
	lastRun    time.Time
	lastStatus string
	running    atomic.Bool
}

func (j *job) interval() string {
	if j.daily {
		return fmt.Sprintf("daily %02d:%02d", j.hour, j.minute)
	}
	return j.every.String()
}

// Scheduler runs registered jobs from a single dispatch loop. Every job is
// single-flight: a dispatch that finds the previous run still going is
// skipped and retried on the next tick. One slow or failing job never
// blocks the others.
type Scheduler struct {
	clock   Clock
	tick    time.Duration
	metrics drepo.Metrics
	logger  *logger.Logger

	mu      sync.Mutex
	jobs    []*job
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(tick time.Duration, clock Clock, metrics drepo.Metrics, log *logger.Logger) *Scheduler {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &Scheduler{
		clock:   clock,
		tick:    tick,
		metrics: metrics,
		logger:  log,
		stopCh:  make(chan struct{}),
	}
}

// Every registers an interval job. The first run is one interval after
// Start. Register before Start.
func (s *Scheduler) Every(name string, every time.Duration, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, every: every, handler: fn})
}

// Daily registers a wall-clock job firing once per day at hour:minute.
// Register before Start.
func (s *Scheduler) Daily(name string, hour, minute int, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, daily: true, hour: hour, minute: minute, handler: fn})
}

// Start computes first due times and launches the dispatch loop. Calling
// Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	now := s.clock.Now()
	for _, j := range s.jobs {
		if j.daily {
			j.nextDue = util.NextDailyAfter(now, j.hour, j.minute)
		} else {
			j.nextDue = now.Add(j.every)
		}
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started",
		logger.Int("jobs", len(s.jobs)),
		logger.Duration("tick", s.tick))
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C():
			s.dispatchDue(ctx)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if now.Before(j.nextDue) {
			continue
		}
		if !j.running.CompareAndSwap(false, true) {
			// still going; nextDue stays put, retried next tick
			s.metrics.RecordJobRun(j.name, "skipped")
			s.logger.Warn("job still running, dispatch skipped", logger.String("job", j.name))
			continue
		}
		// advance at dispatch so a slow run never causes a catch-up burst
		if j.daily {
			j.nextDue = util.NextDailyAfter(now, j.hour, j.minute)
		} else {
			j.nextDue = now.Add(j.every)
		}
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.wg.Add(1)
		go s.run(ctx, j, now)
	}
}

func (s *Scheduler) run(ctx context.Context, j *job, started time.Time) {
	defer s.wg.Done()
	defer j.running.Store(false)

	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			s.metrics.RecordJobRun(j.name, status)
			s.logger.Error("job panicked",
				logger.String("job", j.name),
				logger.Any("panic", r))
		}
		s.mu.Lock()
		j.lastRun = started
		j.lastStatus = status
		s.mu.Unlock()
	}()

	if err := j.handler(ctx); err != nil {
		status = "error"
		s.metrics.RecordJobRun(j.name, status)
		s.metrics.RecordJobDuration(j.name, s.clock.Now().Sub(started).Seconds())
		s.logger.Error("job failed",
			logger.String("job", j.name),
			logger.Error(err))
		return
	}
	s.metrics.RecordJobRun(j.name, status)
	s.metrics.RecordJobDuration(j.name, s.clock.Now().Sub(started).Seconds())
	s.logger.Debug("job complete", logger.String("job", j.name))
}

// Stop halts dispatching and waits for in-flight runs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Jobs returns a registry snapshot for the status endpoint.
func (s *Scheduler) Jobs() []models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JobStatus, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = models.JobStatus{
			Name:       j.name,
			Interval:   j.interval(),
			NextDue:    j.nextDue,
			LastRun:    j.lastRun,
			LastStatus: j.lastStatus,
			Running:    j.running.Load(),
		}
	}
	return out
}
