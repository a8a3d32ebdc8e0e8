package weather

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Period is one of the three fixed day segments observations are bucketed into.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// Periods lists every period in chronological order.
var Periods = []Period{PeriodMorning, PeriodAfternoon, PeriodEvening}

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening:
		return true
	}
	return false
}

// ParsePeriod converts a stored period name back into a Period.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// PeriodForHour maps a clock hour (0-23) to its period.
// Morning covers 00-07, afternoon 08-15 and evening 16-23.
func PeriodForHour(hour int) (Period, error) {
	switch {
	case hour >= 0 && hour < 8:
		return PeriodMorning, nil
	case hour >= 8 && hour < 16:
		return PeriodAfternoon, nil
	case hour >= 16 && hour < 24:
		return PeriodEvening, nil
	default:
		return "", fmt.Errorf("hour %d out of range", hour)
	}
}

// Location represents the single place whose weather is tracked.
// Lat/Lon are optional; providers fall back to City/Country when they are nil.
type Location struct {
	City    string   `json:"city"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Name returns the free-text place name stored with every reading.
func (l Location) Name() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + ", " + l.Country
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// Observation is a single hourly sample returned by a provider.
// Time is the wall clock at the location, stored in a UTC container.
type Observation struct {
	Time         time.Time
	TemperatureC float64
	FeelsLikeC   float64
	HumidityPct  float64
	WindKph      float64
	Condition    string
}

// PeriodSummary is the aggregate of all observations falling into one period.
type PeriodSummary struct {
	Period         Period  `json:"period"`
	Samples        int     `json:"samples"`
	AvgTemperature float64 `json:"temperature"`
	AvgFeelsLike   float64 `json:"feelsLike"`
	AvgHumidity    float64 `json:"humidity"`
	AvgWindSpeed   float64 `json:"windSpeed"`
	Condition      string  `json:"weatherCondition"`
}

// ReadingKey identifies at most one reading in the destination store.
type ReadingKey struct {
	Date     time.Time
	Location string
	Period   Period
}

func (k ReadingKey) String() string {
	return k.Date.Format(DateLayout) + "/" + k.Location + "/" + string(k.Period)
}

// Reading is a persisted weather_data row.
type Reading struct {
	ID               int64     `json:"id,omitempty"`
	Date             time.Time `json:"date"` // civil date, midnight UTC
	Location         string    `json:"location"`
	Period           Period    `json:"period"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	WindSpeed        float64   `json:"wind_speed"`
	WeatherCondition string    `json:"weather_condition"`
	UserID           uuid.UUID `json:"user_id"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// Key returns the uniqueness key of the reading.
func (r Reading) Key() ReadingKey {
	return ReadingKey{Date: r.Date, Location: r.Location, Period: r.Period}
}

// NewReading builds the row for a period summary owned by userID.
func NewReading(date time.Time, loc Location, s PeriodSummary, userID uuid.UUID) Reading {
	return Reading{
		Date:             CivilDate(date),
		Location:         loc.Name(),
		Period:           s.Period,
		Temperature:      s.AvgTemperature,
		Humidity:         s.AvgHumidity,
		WindSpeed:        s.AvgWindSpeed,
		WeatherCondition: s.Condition,
		UserID:           userID,
	}
}

// CivilDate drops the clock and zone of t, keeping its calendar date at
// midnight UTC.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}

// Yesterday returns the calendar date before now, as seen in zone.
func Yesterday(now time.Time, zone *time.Location) time.Time {
	local := now.In(zone)
	return CivilDate(local.AddDate(0, 0, -1))
}
