package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/observability/logging"
)

// SchedulerConfig configures the monthly batch trigger.
type SchedulerConfig struct {
	DayOfMonth  int
	At          string
	Locations   []int64
	AuditUserID int64
}

// Scheduler runs the previous month's batch on a fixed day and time.
type Scheduler struct {
	runner Runner
	cfg    SchedulerConfig
	tick   time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner Runner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		tick:   time.Minute,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.OrNop(logger),
	}
}

// Start blocks until ctx is done, firing due runs once per minute.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			if !s.shouldRun(now) {
				continue
			}
			s.RunOnce(ctx, now)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.cfg.At)
	if err != nil {
		return false
	}
	return now.Day() == s.cfg.DayOfMonth && now.Hour() == hour && now.Minute() == minute
}

// RunOnce runs the month preceding now for every configured location.
// Location 0 runs the batch without a location.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) int {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	locations := s.cfg.Locations
	if len(locations) == 0 {
		locations = []int64{0}
	}
	completed := 0
	for _, loc := range locations {
		var locationID *int64
		if loc != 0 {
			id := loc
			locationID = &id
		}
		_, err := s.runner.Run(ctx, RunCommand{
			AuditUserID: s.cfg.AuditUserID,
			LocationID:  locationID,
			Month:       int(prev.Month()),
			Year:        prev.Year(),
		})
		switch {
		case err == nil:
			completed++
		case errors.Is(err, batch.ErrAlreadyRun):
			s.logger.Info("scheduled batch already run",
				zap.Int64("location_id", loc), zap.Int("year", prev.Year()), zap.Int("month", int(prev.Month())))
		default:
			s.logger.Error("scheduled batch failed",
				zap.Int64("location_id", loc), zap.Int("year", prev.Year()), zap.Int("month", int(prev.Month())), zap.Error(err))
		}
	}
	return completed
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
