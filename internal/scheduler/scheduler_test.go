package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CoinPulse/pkg/logger"
)

type fakeTicker struct {
	ch chan time.Time
}

func (ft *fakeTicker) C() <-chan time.Time { return ft.ch }
func (ft *fakeTicker) Stop()               {}

// fakeClock drives the dispatch loop by hand: Advance moves the clock and
// fires one tick.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{ch: make(chan time.Time, 16)}
	c.tickers = append(c.tickers, ft)
	return ft
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := c.tickers
	c.mu.Unlock()
	for _, ft := range tickers {
		ft.ch <- now
	}
	// give the dispatch loop time to scan
	time.Sleep(50 * time.Millisecond)
}

type jobRunRecorder struct {
	mu   sync.Mutex
	runs map[string]map[string]int
}

func newJobRunRecorder() *jobRunRecorder {
	return &jobRunRecorder{runs: make(map[string]map[string]int)}
}

func (m *jobRunRecorder) RecordJobRun(job, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[job] == nil {
		m.runs[job] = make(map[string]int)
	}
	m.runs[job][status]++
}

func (m *jobRunRecorder) count(job, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[job][status]
}

func (m *jobRunRecorder) RecordSampleIngested(string)         {}
func (m *jobRunRecorder) RecordQualityScore(string, float64)  {}
func (m *jobRunRecorder) RecordCacheRequest(string, string)   {}
func (m *jobRunRecorder) RecordCacheDegraded(bool)            {}
func (m *jobRunRecorder) RecordJobDuration(string, float64)   {}
func (m *jobRunRecorder) RecordError(string)                  {}
func (m *jobRunRecorder) RecordLastPrice(string, float64)     {}
func (m *jobRunRecorder) RecordLatency(string, float64)       {}

func newTestScheduler(t *testing.T, tick time.Duration, clk Clock) (*Scheduler, *jobRunRecorder) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := newJobRunRecorder()
	return New(tick, clk, m, log), m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestIntervalJobRunsWhenDue(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, _ := newTestScheduler(t, 10*time.Second, clk)

	var runs atomic.Int64
	s.Every("collect", 30*time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(context.Background())

	clk.Advance(10 * time.Second)
	clk.Advance(10 * time.Second)
	if got := runs.Load(); got != 0 {
		t.Fatalf("job ran before due: %d runs", got)
	}

	clk.Advance(10 * time.Second)
	waitFor(t, "first run", func() bool { return runs.Load() == 1 })

	clk.Advance(30 * time.Second)
	waitFor(t, "second run", func() bool { return runs.Load() == 2 })
}

func TestSingleFlight(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, m := newTestScheduler(t, 10*time.Second, clk)

	gate := make(chan struct{})
	var starts, completions atomic.Int64
	s.Every("slow", 10*time.Second, func(context.Context) error {
		starts.Add(1)
		<-gate
		completions.Add(1)
		return nil
	})

	s.Start(context.Background())
	defer s.Stop(context.Background())

	clk.Advance(10 * time.Second)
	waitFor(t, "first start", func() bool { return starts.Load() == 1 })

	// two more ticks while the first run is stuck
	clk.Advance(10 * time.Second)
	clk.Advance(10 * time.Second)
	if got := starts.Load(); got != 1 {
		t.Fatalf("overlapping dispatch: %d starts", got)
	}
	if got := m.count("slow", "skipped"); got != 2 {
		t.Fatalf("skipped dispatches = %d, want 2", got)
	}

	close(gate)
	waitFor(t, "first completion", func() bool { return completions.Load() == 1 })

	clk.Advance(10 * time.Second)
	waitFor(t, "second run", func() bool { return completions.Load() == 2 })
	if got := starts.Load(); got != 2 {
		t.Fatalf("starts = %d, want 2", got)
	}
}

func TestFailingJobDoesNotBlockOthers(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, m := newTestScheduler(t, 10*time.Second, clk)

	var healthyRuns atomic.Int64
	s.Every("broken", 10*time.Second, func(context.Context) error {
		return errors.New("boom")
	})
	s.Every("healthy", 10*time.Second, func(context.Context) error {
		healthyRuns.Add(1)
		return nil
	})

	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i := 0; i < 5; i++ {
		clk.Advance(10 * time.Second)
	}
	waitFor(t, "healthy runs", func() bool { return healthyRuns.Load() == 5 })
	waitFor(t, "recorded failures", func() bool { return m.count("broken", "error") == 5 })
}

func TestPanickingJobIsRecovered(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, m := newTestScheduler(t, 10*time.Second, clk)

	var runs atomic.Int64
	s.Every("angry", 10*time.Second, func(context.Context) error {
		panic("kaboom")
	})
	s.Every("calm", 10*time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	defer s.Stop(context.Background())

	clk.Advance(10 * time.Second)
	clk.Advance(10 * time.Second)
	waitFor(t, "calm runs", func() bool { return runs.Load() == 2 })
	waitFor(t, "recorded panics", func() bool { return m.count("angry", "panic") == 2 })
}

func TestDailyJobFiresOncePerDay(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 1, 55, 0, 0, time.UTC))
	s, _ := newTestScheduler(t, time.Minute, clk)

	var runs atomic.Int64
	s.Daily("reprocess", 2, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	defer s.Stop(context.Background())

	clk.Advance(5 * time.Minute) // 02:00
	waitFor(t, "daily run", func() bool { return runs.Load() == 1 })

	clk.Advance(time.Hour) // 03:00, same day
	clk.Advance(time.Hour)
	if got := runs.Load(); got != 1 {
		t.Fatalf("daily job fired again within the day: %d runs", got)
	}

	clk.Advance(24 * time.Hour)
	waitFor(t, "next-day run", func() bool { return runs.Load() == 2 })
}

func TestStopWaitsForInflight(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, _ := newTestScheduler(t, 10*time.Second, clk)

	release := make(chan struct{})
	var done atomic.Bool
	s.Every("slow", 10*time.Second, func(context.Context) error {
		<-release
		done.Store(true)
		return nil
	})

	s.Start(context.Background())
	clk.Advance(10 * time.Second)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !done.Load() {
		t.Fatal("stop returned before the in-flight run finished")
	}
}

func TestStopDeadline(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, _ := newTestScheduler(t, 10*time.Second, clk)

	var started atomic.Bool
	s.Every("stuck", 10*time.Second, func(context.Context) error {
		started.Store(true)
		select {} // never returns
	})

	s.Start(context.Background())
	clk.Advance(10 * time.Second)
	waitFor(t, "job start", func() bool { return started.Load() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Fatal("expected deadline error from Stop")
	}
}

func TestJobsSnapshot(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, _ := newTestScheduler(t, 10*time.Second, clk)

	var runs atomic.Int64
	s.Every("collect", 30*time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Daily("reprocess", 2, 0, func(context.Context) error { return nil })

	s.Start(context.Background())
	defer s.Stop(context.Background())

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Name != "collect" || jobs[0].Interval != "30s" {
		t.Errorf("unexpected first job: %+v", jobs[0])
	}
	if jobs[1].Interval != "daily 02:00" {
		t.Errorf("daily interval = %q", jobs[1].Interval)
	}

	clk.Advance(30 * time.Second)
	waitFor(t, "run", func() bool { return runs.Load() == 1 })
	waitFor(t, "status update", func() bool {
		for _, j := range s.Jobs() {
			if j.Name == "collect" && j.LastStatus == "ok" {
				return true
			}
		}
		return false
	})
}
