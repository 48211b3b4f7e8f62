// Package schedule runs the engine's periodic jobs. Each job owns a ticker
// and a single-flight guard: if a run is still executing when the next tick
// arrives, the tick is skipped and counted, never run concurrently with
// itself. Jobs are triggerable by name so tests simulate time instead of
// sleeping.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

var (
	mJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_job_runs_total", Help: "Completed job runs.",
	}, []string{"job", "result"})
	mJobSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_job_skipped_total", Help: "Ticks skipped because the previous run was still in flight.",
	}, []string{"job"})
	mJobDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "engine_job_duration_seconds", Help: "Job run duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

// Func is one job body. Errors are logged and isolated; they never stop the
// job's ticker.
type Func func(ctx context.Context) error

type job struct {
	name     string
	every    time.Duration
	fn       Func
	inFlight atomic.Bool
}

type Scheduler struct {
	log   *zap.Logger
	clock notification.Clock

	mu   sync.Mutex
	jobs []*job
}

func New(log *zap.Logger, clock notification.Clock) *Scheduler {
	return &Scheduler{
		log:   log.With(zap.String("component", "schedule")),
		clock: clock,
	}
}

// Add registers a named periodic job. Must be called before Run.
func (s *Scheduler) Add(name string, every time.Duration, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, every: every, fn: fn})
}

// Run starts one ticker goroutine per job and blocks until ctx is done.
// Each job fires once immediately on start.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	s.log.Info("job started", zap.String("job", j.name), zap.Duration("every", j.every))

	ticker := time.NewTicker(j.every)
	defer ticker.Stop()

	s.run(ctx, j)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("job stopped", zap.String("job", j.name))
			return
		case <-ticker.C:
			s.run(ctx, j)
		}
	}
}

// RunJobNow triggers one named job synchronously. It honors the same
// single-flight guard as the ticker path.
func (s *Scheduler) RunJobNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *job
	for _, j := range s.jobs {
		if j.name == name {
			found = j
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	s.run(ctx, found)
	return nil
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	if !j.inFlight.CompareAndSwap(false, true) {
		mJobSkipped.WithLabelValues(j.name).Inc()
		s.log.Warn("tick skipped, previous run still in flight", zap.String("job", j.name))
		return
	}
	defer j.inFlight.Store(false)

	start := s.clock.Now()
	result := "ok"

	func() {
		defer func() {
			if r := recover(); r != nil {
				result = "panic"
				s.log.Error("job panicked",
					zap.String("job", j.name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		if err := j.fn(ctx); err != nil {
			result = "error"
			s.log.Warn("job run failed", zap.String("job", j.name), zap.Error(err))
		}
	}()

	mJobRuns.WithLabelValues(j.name, result).Inc()
	mJobDur.WithLabelValues(j.name).Observe(s.clock.Now().Sub(start).Seconds())
}
