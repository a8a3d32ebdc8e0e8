package config

import (
	"fmt"
	"log"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// geocode is swapped out in tests.
var geocode = func(apiKey string, loc weather.Location) (float64, float64, error) {
	geocoder.ApiKey = apiKey
	res, err := geocoder.Geocoding(geocoder.Address{
		City:    loc.City,
		Country: loc.Country,
	})
	if err != nil {
		return 0, 0, err
	}
	return res.Latitude, res.Longitude, nil
}

// ResolveLocation fills in missing coordinates using the Google geocoding API
// when a key is configured. Open-Meteo cannot work without coordinates, so
// that combination is a configuration error.
func ResolveLocation(cfg *AppConfig) error {
	if cfg.Location.HasCoordinates() {
		return nil
	}

	if cfg.GeocoderAPIKey == "" {
		if cfg.Provider == "openmeteo" {
			return fmt.Errorf("%w: openmeteo needs LOCATION_LAT/LOCATION_LON or GEOCODER_API_KEY", weather.ErrConfig)
		}
		return nil
	}

	lat, lon, err := geocode(cfg.GeocoderAPIKey, cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: geocode %s: %v", weather.ErrConfig, cfg.Location.Name(), err)
	}
	log.Printf("INFO: geocoded %s to %f,%f", cfg.Location.Name(), lat, lon)
	cfg.Location.Lat = &lat
	cfg.Location.Lon = &lon
	return nil
}
