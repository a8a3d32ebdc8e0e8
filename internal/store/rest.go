package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-period-tracker/internal/auth"
	"github.com/i474232898/weather-period-tracker/internal/common"
	"github.com/i474232898/weather-period-tracker/internal/httpclient"
	"github.com/i474232898/weather-period-tracker/internal/weather"
)

const restTable = "weather_data"

// RestStore implements weather.Store against a PostgREST endpoint. Requests
// carry the session's access token, so row-level security is enforced by the
// database itself.
type RestStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewRestStore creates a RestStore for the project at baseURL.
func NewRestStore(client *http.Client, baseURL, apiKey string) *RestStore {
	return &RestStore{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1/" + restTable,
		apiKey:  apiKey,
		client:  client,
		circuit: httpclient.NewBreaker("rest-store"),
	}
}

type restRow struct {
	ID               int64     `json:"id,omitempty"`
	Date             string    `json:"date"`
	Location         string    `json:"location"`
	Period           string    `json:"period"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	WindSpeed        float64   `json:"wind_speed"`
	WeatherCondition string    `json:"weather_condition"`
	UserID           uuid.UUID `json:"user_id"`
	CreatedAt        string    `json:"created_at,omitempty"`
}

func (row restRow) toReading() (weather.Reading, error) {
	date, err := weather.ParseDate(row.Date)
	if err != nil {
		return weather.Reading{}, err
	}
	p, err := weather.ParsePeriod(row.Period)
	if err != nil {
		return weather.Reading{}, err
	}
	r := weather.Reading{
		ID:               row.ID,
		Date:             date,
		Location:         row.Location,
		Period:           p,
		Temperature:      row.Temperature,
		Humidity:         row.Humidity,
		WindSpeed:        row.WindSpeed,
		WeatherCondition: row.WeatherCondition,
		UserID:           row.UserID,
	}
	if row.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
			r.CreatedAt = ts.UTC()
		}
	}
	return r, nil
}

// Exists reports whether a row visible to the caller exists for key.
func (s *RestStore) Exists(ctx context.Context, sess auth.Session, key weather.ReadingKey) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("date", "eq."+key.Date.Format(weather.DateLayout))
	q.Set("location", "eq."+key.Location)
	q.Set("period", "eq."+string(key.Period))
	q.Set("limit", "1")

	var rows []restRow
	if err := s.do(ctx, sess, http.MethodGet, q, nil, "", &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// InsertIfAbsent inserts r and lets the unique index resolve conflicts by
// ignoring the duplicate.
func (s *RestStore) InsertIfAbsent(ctx context.Context, sess auth.Session, r weather.Reading) (bool, error) {
	if err := checkOwner(sess, r); err != nil {
		return false, err
	}

	body, err := json.Marshal([]restRow{{
		Date:             r.Date.Format(weather.DateLayout),
		Location:         r.Location,
		Period:           string(r.Period),
		Temperature:      r.Temperature,
		Humidity:         r.Humidity,
		WindSpeed:        r.WindSpeed,
		WeatherCondition: r.WeatherCondition,
		UserID:           r.UserID,
	}})
	if err != nil {
		return false, fmt.Errorf("%w: encode row: %v", weather.ErrWrite, err)
	}

	q := url.Values{}
	q.Set("on_conflict", "date,location,period")

	var rows []restRow
	err = s.do(ctx, sess, http.MethodPost, q, body, "resolution=ignore-duplicates,return=representation", &rows)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusConflict {
			return false, nil
		}
		return false, err
	}
	return len(rows) > 0, nil
}

// List returns the caller's rows for date ordered by period.
func (s *RestStore) List(ctx context.Context, sess auth.Session, date time.Time) ([]weather.Reading, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("date", "eq."+date.Format(weather.DateLayout))
	q.Set("order", "id.asc")

	var rows []restRow
	if err := s.do(ctx, sess, http.MethodGet, q, nil, "", &rows); err != nil {
		return nil, err
	}

	readings := make([]weather.Reading, 0, len(rows))
	for _, row := range rows {
		r, err := row.toReading()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", weather.ErrWrite, row.ID, err)
		}
		readings = append(readings, r)
	}
	sortReadings(readings)
	return readings, nil
}

func (s *RestStore) do(ctx context.Context, sess auth.Session, method string, q url.Values, body []byte, prefer string, out interface{}) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if sess.AccessToken == "" {
		return fmt.Errorf("%w: %w: session has no access token", weather.ErrWrite, ErrPolicyViolation)
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(method, s.baseURL+"?"+q.Encode(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}
		return req, nil
	}

	resp, err := httpclient.Do(ctx, s.client, s.circuit, buildRequest)
	if err != nil {
		return classifyRestError(err)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", weather.ErrWrite, err)
	}
	return nil
}

func classifyRestError(err error) error {
	code := httpclient.StatusCode(err)
	if code == http.StatusUnauthorized || code == http.StatusForbidden ||
		common.ContainsAnyFold(err.Error(), "row-level security", "permission denied") {
		return fmt.Errorf("%w: %w: %w", weather.ErrWrite, ErrPolicyViolation, err)
	}
	return fmt.Errorf("%w: %w", weather.ErrWrite, err)
}
