package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// Runner is the part of weather.Service the scheduler drives.
type Runner interface {
	RunYesterday(ctx context.Context) (weather.RunResult, error)
}

// Scheduler triggers the daily pipeline run on a cron expression evaluated in
// a fixed-offset zone. gocron ticks once a minute and the cron schedule
// decides whether that minute is due; gocron's own cron support looks zones
// up by name and cannot take a bare offset.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	spec      string
	zone      *time.Location
	timeout   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	schedule  cron.Schedule
	lastFired time.Time
}

// New creates a new Scheduler evaluating spec in zone. Each run is bounded by
// timeout.
func New(spec string, zone *time.Location, timeout time.Duration, runner Runner) *Scheduler {
	if zone == nil {
		zone = time.UTC
	}
	s := gocron.NewScheduler(zone)
	// A run still in progress when the next trigger fires is not doubled up.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		spec:      spec,
		zone:      zone,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Start parses the schedule, registers the minute tick and starts the
// underlying scheduler.
func (s *Scheduler) Start() error {
	schedule, err := parseSpec(s.spec, s.zone)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.mu.Lock()
	s.schedule = schedule
	s.mu.Unlock()

	now := s.now().In(s.zone)
	firstTick := now.Truncate(time.Minute).Add(time.Minute)
	if _, err := s.scheduler.Every(1).Minute().StartAt(firstTick).Do(s.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.scheduler.StartAsync()

	log.Printf("scheduler: next run at %s", s.NextRun().Format(time.RFC3339))
	return nil
}

// NextRun returns the next time the schedule fires, or the zero time before
// Start.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(s.now().In(s.zone))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// parseSpec parses a standard cron line. Expressions without an explicit
// CRON_TZ are evaluated in zone.
func parseSpec(spec string, zone *time.Location) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	if ss, ok := schedule.(*cron.SpecSchedule); ok && ss.Location == time.Local {
		ss.Location = zone
	}
	return schedule, nil
}

func (s *Scheduler) tick() {
	if s.due(s.now()) {
		s.runOnce()
	}
}

// due reports whether the minute containing t is a scheduled minute that has
// not fired yet.
func (s *Scheduler) due(t time.Time) bool {
	minute := t.In(s.zone).Truncate(time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil || !minute.After(s.lastFired) {
		return false
	}
	if !s.schedule.Next(minute.Add(-time.Second)).Equal(minute) {
		return false
	}
	s.lastFired = minute
	return true
}

func (s *Scheduler) runOnce() {
	log.Println("scheduler: running weather ingest job")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.runner.RunYesterday(ctx)
	if err != nil {
		log.Printf("ERROR: scheduler: run for %s failed: %v", res.Date.Format(weather.DateLayout), err)
		return
	}
	log.Printf("scheduler: completed run for %s (written=%d skipped=%d empty=%d)",
		res.Date.Format(weather.DateLayout), len(res.Written), len(res.Skipped), len(res.Empty))
}
