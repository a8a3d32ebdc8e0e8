package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/weather-period-tracker/internal/weather"
)

var configKeys = []string{
	"WEATHER_PROVIDER", "WEATHER_API_KEY", "STORE_DRIVER",
	"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_USER_EMAIL", "SUPABASE_USER_PASSWORD", "SUPABASE_JWT_SECRET",
	"DATABASE_URL", "POSTGRES_RLS_ROLE", "DB_AUTO_MIGRATE", "GEOCODER_API_KEY",
	"WEATHERAPI_BASE_URL", "OPENMETEO_BASE_URL",
	"LOCATION_CITY", "LOCATION_COUNTRY", "LOCATION_LAT", "LOCATION_LON",
	"TARGET_TZ_OFFSET", "HTTP_TIMEOUT", "RUN_MODE", "SCHEDULE_CRON", "PORT",
}

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func setSupabaseEnv(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "weather-key")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "anon-key")
	t.Setenv("SUPABASE_USER_EMAIL", "tracker@example.com")
	t.Setenv("SUPABASE_USER_PASSWORD", "hunter2")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	setSupabaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "weatherapi" || cfg.StoreDriver != DriverRest || cfg.Mode != ModeOnce {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.Location.Name() != "Newcastle, Australia" || !cfg.Location.HasCoordinates() {
		t.Fatalf("unexpected default location %+v", cfg.Location)
	}
	if _, offset := time.Date(2024, 1, 15, 0, 0, 0, 0, cfg.Zone).Zone(); offset != 10*3600 {
		t.Fatalf("expected +10:00 zone, got offset %d", offset)
	}
	if cfg.RLSRole != "authenticated" || cfg.ScheduleCron != "0 2 * * *" || cfg.Port != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReportsMissingVariables(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if !errors.Is(err, weather.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	for _, name := range []string{"WEATHER_API_KEY", "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_USER_EMAIL", "SUPABASE_USER_PASSWORD"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected error to name %s, got %v", name, err)
		}
	}
}

func TestLoadMemoryDriverNeedsNoCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_PROVIDER", "openmeteo")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != DriverMemory || cfg.Provider != "openmeteo" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"provider":   {"WEATHER_PROVIDER", "accuweather"},
		"driver":     {"STORE_DRIVER", "mongo"},
		"timeout":    {"HTTP_TIMEOUT", "soon"},
		"offset":     {"TARGET_TZ_OFFSET", "Sydney"},
		"latitude":   {"LOCATION_LAT", "north"},
		"mode":       {"RUN_MODE", "forever"},
		"migrate":    {"DB_AUTO_MIGRATE", "perhaps"},
		"supabase":   {"SUPABASE_URL", "not a url"},
		"user email": {"SUPABASE_USER_EMAIL", "tracker"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			setSupabaseEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			if !errors.Is(err, weather.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), kv[0]) {
				t.Fatalf("expected error to name %s, got %v", kv[0], err)
			}
		})
	}
}

func TestLoadDaemonValidatesSchedule(t *testing.T) {
	clearEnv(t)
	setSupabaseEnv(t)
	t.Setenv("RUN_MODE", "daemon")
	t.Setenv("SCHEDULE_CRON", "every day")

	_, err := Load()
	if !errors.Is(err, weather.ErrConfig) || !strings.Contains(err.Error(), "SCHEDULE_CRON") {
		t.Fatalf("expected SCHEDULE_CRON error, got %v", err)
	}

	t.Setenv("SCHEDULE_CRON", "30 1 * * *")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != ModeDaemon {
		t.Fatalf("expected daemon mode, got %s", cfg.Mode)
	}
}

func TestLoadPostgresNeedsDatabaseURL(t *testing.T) {
	clearEnv(t)
	setSupabaseEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	if !errors.Is(err, weather.ErrConfig) || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestParseOffset(t *testing.T) {
	cases := map[string]int{
		"+10:00": 10 * 3600,
		"-03:30": -(3*3600 + 30*60),
		"Z":      0,
		"UTC":    0,
	}
	for in, want := range cases {
		zone, err := ParseOffset(in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if _, got := time.Date(2024, 1, 1, 0, 0, 0, 0, zone).Zone(); got != want {
			t.Fatalf("%s: expected offset %d, got %d", in, want, got)
		}
	}
	if _, err := ParseOffset("10"); err == nil {
		t.Fatalf("expected error for malformed offset")
	}
}

func TestResolveLocation(t *testing.T) {
	orig := geocode
	t.Cleanup(func() { geocode = orig })

	calls := 0
	geocode = func(apiKey string, loc weather.Location) (float64, float64, error) {
		calls++
		if apiKey != "geo-key" {
			return 0, 0, errors.New("request denied")
		}
		return -32.9, 151.8, nil
	}

	lat, lon := 1.0, 2.0
	cfg := &AppConfig{Location: weather.Location{City: "Newcastle", Lat: &lat, Lon: &lon}, GeocoderAPIKey: "geo-key"}
	if err := ResolveLocation(cfg); err != nil || calls != 0 {
		t.Fatalf("expected configured coordinates to be kept, err=%v calls=%d", err, calls)
	}

	cfg = &AppConfig{Location: weather.Location{City: "Newcastle", Country: "Australia"}, GeocoderAPIKey: "geo-key"}
	if err := ResolveLocation(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Location.HasCoordinates() || *cfg.Location.Lat != -32.9 {
		t.Fatalf("expected geocoded coordinates, got %+v", cfg.Location)
	}

	cfg = &AppConfig{Location: weather.Location{City: "Newcastle"}, GeocoderAPIKey: "bad-key"}
	if err := ResolveLocation(cfg); !errors.Is(err, weather.ErrConfig) {
		t.Fatalf("expected ErrConfig on geocoder failure, got %v", err)
	}

	cfg = &AppConfig{Provider: "openmeteo", Location: weather.Location{City: "Newcastle"}}
	if err := ResolveLocation(cfg); !errors.Is(err, weather.ErrConfig) {
		t.Fatalf("expected ErrConfig for openmeteo without coordinates, got %v", err)
	}

	cfg = &AppConfig{Provider: "weatherapi", Location: weather.Location{City: "Newcastle"}}
	if err := ResolveLocation(cfg); err != nil {
		t.Fatalf("weatherapi can query by name, got %v", err)
	}
}

func TestLoadReportsUnparsableValueOnce(t *testing.T) {
	cases := map[string]string{
		"TARGET_TZ_OFFSET": "Sydney",
		"HTTP_TIMEOUT":     "soon",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			setSupabaseEnv(t)
			t.Setenv(name, value)

			_, err := Load()
			if !errors.Is(err, weather.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			if n := strings.Count(err.Error(), name); n != 1 {
				t.Fatalf("expected %s to be reported once, got %d times: %v", name, n, err)
			}
		})
	}
}
