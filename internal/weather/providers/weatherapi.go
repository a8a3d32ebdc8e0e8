package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-period-tracker/internal/httpclient"
	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// DefaultWeatherAPIBaseURL is the WeatherAPI.com API root.
const DefaultWeatherAPIBaseURL = "https://api.weatherapi.com/v1"

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey, baseURL string) *WeatherAPIProvider {
	if baseURL == "" {
		baseURL = DefaultWeatherAPIBaseURL
	}
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		circuit: httpclient.NewBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPIHour struct {
	Time       string   `json:"time"`
	TempC      *float64 `json:"temp_c"`
	FeelsLikeC float64  `json:"feelslike_c"`
	Humidity   float64  `json:"humidity"`
	WindKph    float64  `json:"wind_kph"`
	Condition  struct {
		Text string `json:"text"`
	} `json:"condition"`
}

type weatherAPIHistory struct {
	Forecast struct {
		ForecastDay []struct {
			Date string           `json:"date"`
			Hour []weatherAPIHour `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// FetchHistory returns the hourly observations WeatherAPI.com recorded for date.
func (p *WeatherAPIProvider) FetchHistory(ctx context.Context, loc weather.Location, date time.Time) ([]weather.Observation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: weatherapi api key is not configured", weather.ErrFetch)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", weatherAPIQuery(loc))
		values.Set("dt", date.Format(weather.DateLayout))

		u := fmt.Sprintf("%s/history.json?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := httpclient.Do(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: weatherapi: %v", weather.ErrFetch, err)
	}
	defer resp.Body.Close()

	var payload weatherAPIHistory
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: weatherapi: decode response: %v", weather.ErrFetch, err)
	}
	if len(payload.Forecast.ForecastDay) == 0 {
		return nil, fmt.Errorf("%w: weatherapi: response has no forecast day", weather.ErrFetch)
	}

	hours := payload.Forecast.ForecastDay[0].Hour
	observations := make([]weather.Observation, 0, len(hours))
	for i, h := range hours {
		if h.TempC == nil {
			return nil, fmt.Errorf("%w: weatherapi: hour %d has no temperature", weather.ErrFetch, i)
		}
		// Timestamps are local wall clock at the location; keep them as is.
		ts, err := time.Parse("2006-01-02 15:04", h.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: weatherapi: hour %d: invalid time %q", weather.ErrFetch, i, h.Time)
		}
		observations = append(observations, weather.Observation{
			Time:         ts,
			TemperatureC: *h.TempC,
			FeelsLikeC:   h.FeelsLikeC,
			HumidityPct:  h.Humidity,
			WindKph:      h.WindKph,
			Condition:    strings.TrimSpace(h.Condition.Text),
		})
	}
	return observations, nil
}

// weatherAPIQuery builds the "q" parameter; WeatherAPI accepts "lat,lon" or
// "city,country".
func weatherAPIQuery(loc weather.Location) string {
	if loc.HasCoordinates() {
		return fmt.Sprintf("%f,%f", *loc.Lat, *loc.Lon)
	}
	if loc.Country != "" {
		return fmt.Sprintf("%s,%s", loc.City, loc.Country)
	}
	return loc.City
}
