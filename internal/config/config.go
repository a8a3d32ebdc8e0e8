package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// Run modes.
const (
	ModeOnce   = "once"
	ModeDaemon = "daemon"
)

// Store drivers.
const (
	DriverRest     = "rest"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// AppConfig is the whole process configuration. It is loaded once at start
// and passed explicitly to the components that need it.
type AppConfig struct {
	Provider      string `env:"WEATHER_PROVIDER" validate:"oneof=weatherapi openmeteo"`
	WeatherAPIKey string `env:"WEATHER_API_KEY" validate:"required_if=Provider weatherapi"`

	StoreDriver     string `env:"STORE_DRIVER" validate:"oneof=rest postgres memory"`
	SupabaseURL     string `env:"SUPABASE_URL" validate:"required_unless=StoreDriver memory,omitempty,url"`
	ServiceRoleKey  string `env:"SUPABASE_SERVICE_ROLE_KEY" validate:"required_unless=StoreDriver memory"`
	UserEmail       string `env:"SUPABASE_USER_EMAIL" validate:"required_unless=StoreDriver memory,omitempty,email"`
	UserPassword    string `env:"SUPABASE_USER_PASSWORD" validate:"required_unless=StoreDriver memory"`
	JWTSecret       string `env:"SUPABASE_JWT_SECRET"`
	DatabaseURL     string `env:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	RLSRole         string `env:"POSTGRES_RLS_ROLE"`
	DBAutoMigrate   bool   `env:"DB_AUTO_MIGRATE"`
	GeocoderAPIKey  string `env:"GEOCODER_API_KEY"`
	WeatherAPIURL   string `env:"WEATHERAPI_BASE_URL"`
	OpenMeteoAPIURL string `env:"OPENMETEO_BASE_URL"`

	Location weather.Location `env:"LOCATION"`
	Zone     *time.Location   `env:"TARGET_TZ_OFFSET" validate:"required"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`

	Mode         string `env:"RUN_MODE" validate:"oneof=once daemon"`
	ScheduleCron string `env:"SCHEDULE_CRON" validate:"required_if=Mode daemon,omitempty,cronspec"`
	Port         string `env:"PORT" validate:"required_if=Mode daemon,omitempty,numeric"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their environment variable name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Load reads configuration from the environment with sensible defaults.
// Every problem found is reported in a single error wrapping weather.ErrConfig.
func Load() (*AppConfig, error) {
	var problems []string
	// Variables that already failed to parse are not reported again by validation.
	unparsed := make(map[string]bool)

	cfg := &AppConfig{
		Provider:        strings.ToLower(getenvDefault("WEATHER_PROVIDER", "weatherapi")),
		WeatherAPIKey:   strings.TrimSpace(os.Getenv("WEATHER_API_KEY")),
		StoreDriver:     strings.ToLower(getenvDefault("STORE_DRIVER", DriverRest)),
		SupabaseURL:     strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		ServiceRoleKey:  strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
		UserEmail:       strings.TrimSpace(os.Getenv("SUPABASE_USER_EMAIL")),
		UserPassword:    os.Getenv("SUPABASE_USER_PASSWORD"),
		JWTSecret:       os.Getenv("SUPABASE_JWT_SECRET"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RLSRole:         getenvDefault("POSTGRES_RLS_ROLE", "authenticated"),
		GeocoderAPIKey:  strings.TrimSpace(os.Getenv("GEOCODER_API_KEY")),
		WeatherAPIURL:   strings.TrimSpace(os.Getenv("WEATHERAPI_BASE_URL")),
		OpenMeteoAPIURL: strings.TrimSpace(os.Getenv("OPENMETEO_BASE_URL")),
		Mode:            strings.ToLower(getenvDefault("RUN_MODE", ModeOnce)),
		ScheduleCron:    getenvDefault("SCHEDULE_CRON", "0 2 * * *"),
		Port:            getenvDefault("PORT", "8080"),
	}
	if _, set := os.LookupEnv("POSTGRES_RLS_ROLE"); set {
		cfg.RLSRole = strings.TrimSpace(os.Getenv("POSTGRES_RLS_ROLE"))
	}

	autoMigrate, err := getenvBool("DB_AUTO_MIGRATE", false)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.DBAutoMigrate = autoMigrate

	timeout, err := time.ParseDuration(getenvDefault("HTTP_TIMEOUT", "30s"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("invalid HTTP_TIMEOUT: %v", err))
		unparsed["HTTP_TIMEOUT"] = true
	}
	cfg.HTTPTimeout = timeout

	zone, err := ParseOffset(getenvDefault("TARGET_TZ_OFFSET", "+10:00"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("invalid TARGET_TZ_OFFSET: %v", err))
		unparsed["TARGET_TZ_OFFSET"] = true
	}
	cfg.Zone = zone

	loc, err := loadLocation()
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Location = loc

	if err := validate.Struct(cfg); err != nil {
		problems = append(problems, describeValidation(err, unparsed)...)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", weather.ErrConfig, strings.Join(problems, "; "))
	}
	return cfg, nil
}

// loadLocation reads the single tracked location. Coordinates default to
// Newcastle, Australia; setting them to empty strings disables them.
func loadLocation() (weather.Location, error) {
	loc := weather.Location{
		City:    getenvDefault("LOCATION_CITY", "Newcastle"),
		Country: getenvDefault("LOCATION_COUNTRY", "Australia"),
	}

	lat, latErr := getenvFloat("LOCATION_LAT", "-32.9267")
	lon, lonErr := getenvFloat("LOCATION_LON", "151.7783")
	if err := errors.Join(latErr, lonErr); err != nil {
		return loc, err
	}
	if (lat == nil) != (lon == nil) {
		return loc, fmt.Errorf("LOCATION_LAT and LOCATION_LON must be set together")
	}
	if lat != nil && (*lat < -90 || *lat > 90 || *lon < -180 || *lon > 180) {
		return loc, fmt.Errorf("coordinates %f,%f out of range", *lat, *lon)
	}
	loc.Lat, loc.Lon = lat, lon
	return loc, nil
}

// ParseOffset turns a fixed "±HH:MM" offset into a time zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "UTC" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a ±HH:MM offset", s)
	}
	_, offset := t.Zone()
	return time.FixedZone("UTC"+s, offset), nil
}

func describeValidation(err error, skip map[string]bool) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	var out []string
	for _, fe := range verrs {
		if skip[fe.Field()] {
			continue
		}
		switch fe.Tag() {
		case "required", "required_if", "required_unless":
			out = append(out, fmt.Sprintf("missing required environment variable %s", fe.Field()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			out = append(out, fmt.Sprintf("invalid %s (%s)", fe.Field(), fe.Tag()))
		}
	}
	sort.Strings(out)
	return out
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getenvFloat returns nil when the variable is explicitly set to "".
func getenvFloat(key, def string) (*float64, error) {
	v, set := os.LookupEnv(key)
	if !set {
		v = def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", key, err)
	}
	return &f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %v", key, err)
	}
	return b, nil
}
