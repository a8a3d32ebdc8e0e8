package weather

import (
	"context"
	"time"

	"github.com/i474232898/weather-period-tracker/internal/auth"
)

// Provider abstracts a historical weather data source (WeatherAPI.com, Open-Meteo).
type Provider interface {
	Name() string
	FetchHistory(ctx context.Context, loc Location, date time.Time) ([]Observation, error)
}

// Store is the contract every destination store must satisfy. Rows are
// visible to, and may only be written by, the session's identity.
type Store interface {
	Exists(ctx context.Context, sess auth.Session, key ReadingKey) (bool, error)
	// InsertIfAbsent writes r unless a row with the same key exists and
	// reports whether a row was written.
	InsertIfAbsent(ctx context.Context, sess auth.Session, r Reading) (bool, error)
	List(ctx context.Context, sess auth.Session, date time.Time) ([]Reading, error)
}

// Authenticator obtains the identity readings are written under.
type Authenticator interface {
	SignIn(ctx context.Context) (auth.Session, error)
}
