// Package jobs runs the recurring batches: the nightly goal evaluation and
// the monthly usage rollup.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tagstats/internal/config"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	goalJob  *GoalJob
	usageJob *UsageJob

	// Tickers for each job type
	goalTicker  *time.Ticker
	usageTicker *time.Ticker
}

func NewScheduler(goalJob *GoalJob, usageJob *UsageJob, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		enabled:  true,
		cfg:      config.GetConfig(),
		goalJob:  goalJob,
		usageJob: usageJob,
	}, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	s.startGoalJob()
	s.startUsageJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))
	return nil
}

func (s *Scheduler) startGoalJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting goal evaluation job", slog.Duration("interval", interval))
	s.goalTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.logger.Info("Running initial goal evaluation...")
		s.executeJobSafely("goal_evaluation", s.goalJob.Run)

		for {
			select {
			case <-s.goalTicker.C:
				s.executeJobSafely("goal_evaluation", s.goalJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Goal evaluation job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startUsageJob() {
	// The rollup overwrites the same monthly items, so a daily cadence just
	// keeps the current figures fresh.
	interval := 24 * time.Hour
	s.logger.Info("Starting usage rollup job", slog.Duration("interval", interval))
	s.usageTicker = time.NewTicker(interval)

	go func() {
		s.logger.Info("Running initial usage rollup...")
		s.executeJobSafely("usage_rollup", s.usageJob.Run)

		for {
			select {
			case <-s.usageTicker.C:
				s.executeJobSafely("usage_rollup", s.usageJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Usage rollup job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.goalTicker != nil {
		s.goalTicker.Stop()
	}
	if s.usageTicker != nil {
		s.usageTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
