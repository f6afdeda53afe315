// Package scheduler runs periodic background jobs such as the transfer
// expiry sweep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"devreg/pkg/logger"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
}

type Scheduler struct {
	jobs    []Job
	logger  logger.Logger
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log,
		stop:   make(chan struct{}),
	}
}

// Schedule registers a job. Jobs added after Start are ignored.
func (s *Scheduler) Schedule(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || job.Interval <= 0 || job.Run == nil {
		s.logger.Warn("Job not scheduled", map[string]interface{}{"job": job.Name})
		return
	}
	s.jobs = append(s.jobs, job)
	s.logger.Info("Scheduled job", map[string]interface{}{
		"job":      job.Name,
		"interval": job.Interval.String(),
	})
}

// Start launches one goroutine per job. Each job runs once immediately and
// then on every tick; a run never overlaps the previous run of the same job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
	s.logger.Info("Scheduler started", map[string]interface{}{"jobs": len(s.jobs)})
}

// Stop signals all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.execute(job)
	for {
		select {
		case <-ticker.C:
			s.execute(job)
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) execute(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Cancel the run early when the scheduler stops.
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Scheduled job failed", map[string]interface{}{
			"job":   job.Name,
			"error": err.Error(),
		})
		return
	}
	s.logger.Debug("Scheduled job finished", map[string]interface{}{
		"job":         job.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// ExpirySweeper notifies owners about transfers that lapsed.
type ExpirySweeper interface {
	NotifyExpired(ctx context.Context, batch int) (int, error)
}

// TransferExpiryJob builds the job that drains expired, unnotified transfers
// in batches.
func TransferExpiryJob(sweeper ExpirySweeper, interval time.Duration, batch int, log logger.Logger) Job {
	return Job{
		Name:     "transfer-expiry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			total := 0
			for {
				n, err := sweeper.NotifyExpired(ctx, batch)
				if err != nil {
					return err
				}
				total += n
				if n < batch || ctx.Err() != nil {
					break
				}
			}
			if total > 0 {
				log.Info("Expired transfers processed", map[string]interface{}{"count": total})
			}
			return nil
		},
	}
}
