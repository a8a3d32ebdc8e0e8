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

// DefaultOpenMeteoArchiveURL is the Open-Meteo historical archive endpoint.
const DefaultOpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteoProvider implements the weather.Provider interface for the
// Open-Meteo archive. It needs no API key but requires coordinates.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoArchiveURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		circuit: httpclient.NewBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoArchive struct {
	Timezone string `json:"timezone"`
	Hourly   struct {
		Time                []string   `json:"time"`
		Temperature         []*float64 `json:"temperature_2m"`
		ApparentTemperature []*float64 `json:"apparent_temperature"`
		RelativeHumidity    []*float64 `json:"relative_humidity_2m"`
		WindSpeed           []*float64 `json:"wind_speed_10m"`
		WeatherCode         []*int     `json:"weather_code"`
	} `json:"hourly"`
}

// FetchHistory returns the hourly observations the archive holds for date.
func (p *OpenMeteoProvider) FetchHistory(ctx context.Context, loc weather.Location, date time.Time) ([]weather.Observation, error) {
	if !loc.HasCoordinates() {
		return nil, fmt.Errorf("%w: openmeteo requires latitude and longitude", weather.ErrFetch)
	}

	buildRequest := func() (*http.Request, error) {
		day := date.Format(weather.DateLayout)
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", *loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", *loc.Lon))
		values.Set("start_date", day)
		values.Set("end_date", day)
		values.Set("hourly", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code")
		values.Set("wind_speed_unit", "kmh")
		values.Set("timezone", "auto")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := httpclient.Do(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: openmeteo: %v", weather.ErrFetch, err)
	}
	defer resp.Body.Close()

	var payload openMeteoArchive
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: openmeteo: decode response: %v", weather.ErrFetch, err)
	}

	h := payload.Hourly
	n := len(h.Time)
	if len(h.Temperature) != n || len(h.ApparentTemperature) != n || len(h.RelativeHumidity) != n ||
		len(h.WindSpeed) != n || len(h.WeatherCode) != n {
		return nil, fmt.Errorf("%w: openmeteo: hourly series have mismatched lengths", weather.ErrFetch)
	}

	observations := make([]weather.Observation, 0, n)
	for i := 0; i < n; i++ {
		// The archive leaves gaps as null; those hours are not observations.
		if h.Temperature[i] == nil {
			continue
		}
		ts, err := time.Parse("2006-01-02T15:04", h.Time[i])
		if err != nil {
			return nil, fmt.Errorf("%w: openmeteo: hour %d: invalid time %q", weather.ErrFetch, i, h.Time[i])
		}
		observations = append(observations, weather.Observation{
			Time:         ts,
			TemperatureC: *h.Temperature[i],
			FeelsLikeC:   valueOr(h.ApparentTemperature[i], *h.Temperature[i]),
			HumidityPct:  valueOr(h.RelativeHumidity[i], 0),
			WindKph:      valueOr(h.WindSpeed[i], 0),
			Condition:    openMeteoCondition(h.WeatherCode[i]),
		})
	}
	return observations, nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// openMeteoCondition maps WMO weather interpretation codes to labels.
func openMeteoCondition(code *int) string {
	if code == nil {
		return ""
	}
	switch c := *code; {
	case c == 0:
		return "Clear sky"
	case c == 1:
		return "Mainly clear"
	case c == 2:
		return "Partly cloudy"
	case c == 3:
		return "Overcast"
	case c == 45 || c == 48:
		return "Fog"
	case c >= 51 && c <= 57:
		return "Drizzle"
	case c >= 61 && c <= 67:
		return "Rain"
	case c >= 71 && c <= 77:
		return "Snow"
	case c >= 80 && c <= 82:
		return "Rain showers"
	case c == 85 || c == 86:
		return "Snow showers"
	case c >= 95:
		return "Thunderstorm"
	default:
		return ""
	}
}
