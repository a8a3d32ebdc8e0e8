package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-period-tracker/internal/metrics"
	"github.com/i474232898/weather-period-tracker/internal/weather"
)

type fakePipeline struct {
	readings []weather.Reading
	result   weather.RunResult
	err      error
	listDate time.Time
}

func (p *fakePipeline) Location() weather.Location {
	return weather.Location{City: "Newcastle", Country: "Australia"}
}

func (p *fakePipeline) RunYesterday(ctx context.Context) (weather.RunResult, error) {
	return p.result, p.err
}

func (p *fakePipeline) ListReadings(ctx context.Context, date time.Time) ([]weather.Reading, error) {
	p.listDate = date
	return p.readings, p.err
}

func newTestApp(p Pipeline) *fiber.App {
	return NewApp(p, metrics.New(), time.Second)
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

// TestReadingsDateValidation verifies that the readings endpoint requires a
// YYYY-MM-DD date.
func TestReadingsDateValidation(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	for _, target := range []string{"/api/v1/readings", "/api/v1/readings?date=15-01-2024", "/api/v1/readings?date=2024-02-30"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestReadingsList(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	p := &fakePipeline{readings: []weather.Reading{{
		ID:               1,
		Date:             day,
		Location:         "Newcastle, Australia",
		Period:           weather.PeriodMorning,
		Temperature:      18,
		WeatherCondition: "Clear",
	}}}
	app := newTestApp(p)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/readings?date=2024-01-15", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if !p.listDate.Equal(day) {
		t.Fatalf("expected list for %s, got %s", day, p.listDate)
	}

	var body struct {
		Location string            `json:"location"`
		Date     string            `json:"date"`
		Readings []weather.Reading `json:"readings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Location != "Newcastle, Australia" || body.Date != "2024-01-15" || len(body.Readings) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Readings[0].Period != weather.PeriodMorning {
		t.Fatalf("unexpected reading %+v", body.Readings[0])
	}
}

func TestRunsErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: timeout", weather.ErrFetch), http.StatusBadGateway},
		{fmt.Errorf("%w: bad hour", weather.ErrAggregation), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: invalid login", weather.ErrAuth), http.StatusUnauthorized},
		{fmt.Errorf("%w: policy", weather.ErrWrite), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		app := newTestApp(&fakePipeline{err: tc.err})
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.want, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	recorder := metrics.New()
	recorder.Run("ok")
	app := NewApp(&fakePipeline{}, recorder, time.Second)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "weather_tracker_runs_total") {
		t.Fatalf("expected run counter in metrics output")
	}
}
