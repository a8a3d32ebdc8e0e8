package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/i474232898/weather-period-tracker/internal/auth"
	"github.com/i474232898/weather-period-tracker/internal/metrics"
)

// RunResult describes what a single pipeline run did for its target date.
type RunResult struct {
	Date     time.Time       `json:"date"`
	Location string          `json:"location"`
	Periods  []PeriodSummary `json:"periods"`
	Written  []Period        `json:"written"`
	Skipped  []Period        `json:"skipped"`
	Empty    []Period        `json:"empty"`
}

// Service fetches a day of observations for one location, aggregates them
// into periods and writes the periods that are not stored yet.
type Service struct {
	provider Provider
	store    Store
	auth     Authenticator
	location Location
	zone     *time.Location
	metrics  *metrics.Recorder
	now      func() time.Time

	mu      sync.Mutex
	session *auth.Session
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used to pick "yesterday".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new Service. zone decides which calendar day is
// "yesterday".
func NewService(provider Provider, store Store, authenticator Authenticator, loc Location, zone *time.Location, opts ...Option) *Service {
	if zone == nil {
		zone = time.UTC
	}
	s := &Service{
		provider: provider,
		store:    store,
		auth:     authenticator,
		location: loc,
		zone:     zone,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the tracked location.
func (s *Service) Location() Location {
	return s.location
}

// TargetDate is the calendar date a run started now would process.
func (s *Service) TargetDate() time.Time {
	return Yesterday(s.now(), s.zone)
}

// RunYesterday runs the pipeline for the day before now in the configured zone.
func (s *Service) RunYesterday(ctx context.Context) (RunResult, error) {
	return s.Run(ctx, s.TargetDate())
}

// Run fetches, aggregates and stores the readings for date. Any failing stage
// aborts the rest of the run; periods already present are skipped.
func (s *Service) Run(ctx context.Context, date time.Time) (RunResult, error) {
	res, err := s.run(ctx, CivilDate(date))
	s.metrics.Run(resultLabel(err))
	return res, err
}

func (s *Service) run(ctx context.Context, date time.Time) (RunResult, error) {
	res := RunResult{Date: date, Location: s.location.Name()}

	log.Printf("service: fetching %s history for %s from %s", s.location.Name(), date.Format(DateLayout), s.provider.Name())
	observations, err := s.provider.FetchHistory(ctx, s.location, date)
	if err != nil {
		if !errors.Is(err, ErrFetch) {
			err = fmt.Errorf("%w: %s: %v", ErrFetch, s.provider.Name(), err)
		}
		return res, err
	}
	log.Printf("service: received %d hourly observations", len(observations))

	summaries, err := AggregatePeriods(date, observations)
	if err != nil {
		return res, err
	}
	res.Periods = summaries
	log.Printf("INFO: %s", FormatReport(s.location, date, summaries))

	present := make(map[Period]bool, len(summaries))
	for _, sum := range summaries {
		present[sum.Period] = true
	}
	for _, p := range Periods {
		if !present[p] {
			log.Printf("service: no observations for %s; skipping", p)
			res.Empty = append(res.Empty, p)
			s.metrics.Period(metrics.OutcomeSkippedEmpty)
		}
	}
	if len(summaries) == 0 {
		return res, nil
	}

	sess, err := s.signIn(ctx)
	if err != nil {
		return res, err
	}

	for _, sum := range summaries {
		reading := NewReading(date, s.location, sum, sess.UserID)
		key := reading.Key()

		exists, err := s.store.Exists(ctx, sess, key)
		if err != nil {
			return res, wrapWrite(err, "check %s", key)
		}
		if exists {
			log.Printf("service: %s already present; skipping", key)
			res.Skipped = append(res.Skipped, sum.Period)
			s.metrics.Period(metrics.OutcomeSkippedExisting)
			continue
		}

		inserted, err := s.store.InsertIfAbsent(ctx, sess, reading)
		if err != nil {
			return res, wrapWrite(err, "insert %s", key)
		}
		if !inserted {
			log.Printf("service: %s was written concurrently; skipping", key)
			res.Skipped = append(res.Skipped, sum.Period)
			s.metrics.Period(metrics.OutcomeSkippedConflict)
			continue
		}

		log.Printf("service: stored %s", key)
		res.Written = append(res.Written, sum.Period)
		s.metrics.Period(metrics.OutcomeWritten)
	}
	return res, nil
}

// ListReadings returns the readings the application user owns for date.
func (s *Service) ListReadings(ctx context.Context, date time.Time) ([]Reading, error) {
	sess, err := s.signIn(ctx)
	if err != nil {
		return nil, err
	}
	readings, err := s.store.List(ctx, sess, CivilDate(date))
	if err != nil {
		return nil, wrapWrite(err, "list %s", date.Format(DateLayout))
	}
	return readings, nil
}

// signIn reuses the cached session until it expires.
func (s *Service) signIn(ctx context.Context) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && !s.session.Expired(s.now().Add(time.Minute)) {
		return *s.session, nil
	}

	sess, err := s.auth.SignIn(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	log.Printf("service: authenticated as %s", sess.UserID)
	s.session = &sess
	return sess, nil
}

func wrapWrite(err error, format string, args ...interface{}) error {
	if errors.Is(err, ErrWrite) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrWrite, fmt.Sprintf(format, args...), err)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrFetch):
		return "fetch_error"
	case errors.Is(err, ErrAggregation):
		return "aggregation_error"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrWrite):
		return "write_error"
	default:
		return "error"
	}
}
