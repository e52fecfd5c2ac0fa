package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/petwelfare/service-agetracker/internal/application"
	"github.com/petwelfare/service-agetracker/internal/platform/metrics"
)

const jobName = "daily_age_recalculation"

// Recalculator runs one bulk recalculation. *application.AgeTrackingService satisfies it.
type Recalculator interface {
	UpdateAllAges(ctx context.Context) (*application.BulkRecalculationResult, error)
}

// DailyRecalculationJob triggers a bulk age recalculation on a cron schedule.
// Failed runs are logged and wait for the next trigger; runs are not retried.
type DailyRecalculationJob struct {
	mu sync.Mutex

	spec         string
	location     *time.Location
	schedule     cron.Schedule
	recalculator Recalculator
	logger       *zap.Logger

	cron    *cron.Cron
	running bool
}

// NewDailyRecalculationJob validates the cron spec (five fields) and builds the job.
func NewDailyRecalculationJob(spec string, location *time.Location, recalculator Recalculator, logger *zap.Logger) (*DailyRecalculationJob, error) {
	if location == nil {
		location = time.UTC
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	return &DailyRecalculationJob{
		spec:         spec,
		location:     location,
		schedule:     schedule,
		recalculator: recalculator,
		logger:       logger.With(zap.String("job", jobName)),
	}, nil
}

// Start registers the job and starts the cron runner in the background.
func (j *DailyRecalculationJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("%s already running", jobName)
	}

	c := cron.New(cron.WithLocation(j.location))
	if _, err := c.AddFunc(j.spec, func() { j.Run(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", jobName, err)
	}
	c.Start()

	j.cron = c
	j.running = true
	j.logger.Info("scheduler started",
		zap.String("cron", j.spec),
		zap.String("timezone", j.location.String()),
		zap.Time("next_run", j.NextRun(time.Now())),
	)
	return nil
}

// Stop stops scheduling and waits for an in-flight run, or until ctx is done.
func (j *DailyRecalculationJob) Stop(ctx context.Context) {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	c := j.cron
	j.running = false
	j.cron = nil
	j.mu.Unlock()

	select {
	case <-c.Stop().Done():
		j.logger.Info("scheduler stopped")
	case <-ctx.Done():
		j.logger.Warn("scheduler stop timed out with a run in flight")
	}
}

// Run performs one recalculation. It never panics and never returns an error:
// the outcome is logged and recorded as metrics.
func (j *DailyRecalculationJob) Run(ctx context.Context) {
	start := time.Now()
	success := false

	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("recalculation panicked", zap.Any("panic", r))
			success = false
		}
		metrics.RecordJobRun(jobName, time.Since(start), success)
	}()

	j.logger.Info("starting scheduled age recalculation")

	result, err := j.recalculator.UpdateAllAges(ctx)
	if err != nil && result == nil {
		j.logger.Error("scheduled age recalculation failed", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.Int("updated_count", result.UpdatedCount),
		zap.Int("failed_count", result.FailedCount),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		j.logger.Warn("scheduled age recalculation finished with failures", append(fields, zap.Error(err))...)
		return
	}

	success = true
	j.logger.Info("scheduled age recalculation finished", fields...)
}

// NextRun returns the first trigger strictly after from, in the job's time zone.
func (j *DailyRecalculationJob) NextRun(from time.Time) time.Time {
	return j.schedule.Next(from.In(j.location))
}

// Running reports whether the cron runner is active.
func (j *DailyRecalculationJob) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
