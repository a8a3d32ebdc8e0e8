package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	httpapi "github.com/i474232898/weather-period-tracker/internal/api/http"
	"github.com/i474232898/weather-period-tracker/internal/auth"
	"github.com/i474232898/weather-period-tracker/internal/config"
	"github.com/i474232898/weather-period-tracker/internal/metrics"
	"github.com/i474232898/weather-period-tracker/internal/scheduler"
	"github.com/i474232898/weather-period-tracker/internal/store"
	"github.com/i474232898/weather-period-tracker/internal/weather"
	"github.com/i474232898/weather-period-tracker/internal/weather/providers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	err := run()
	if err != nil {
		log.Printf("ERROR: %v", err)
	}
	os.Exit(weather.ExitCode(err))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.ResolveLocation(cfg); err != nil {
		return err
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider, err := newProvider(cfg, httpClient)
	if err != nil {
		return err
	}
	st, authenticator, err := newStore(cfg, httpClient)
	if err != nil {
		return err
	}

	recorder := metrics.New()
	service := weather.NewService(provider, st, authenticator, cfg.Location, cfg.Zone, weather.WithMetrics(recorder))

	if cfg.Mode == config.ModeDaemon {
		return serve(cfg, service, recorder)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTPTimeout+30*time.Second)
	defer cancel()

	res, err := service.RunYesterday(ctx)
	if err != nil {
		return err
	}
	log.Printf("INFO: run for %s completed: written=%v skipped=%v empty=%v",
		res.Date.Format(weather.DateLayout), res.Written, res.Skipped, res.Empty)
	return nil
}

func newProvider(cfg *config.AppConfig, client *http.Client) (weather.Provider, error) {
	switch cfg.Provider {
	case "weatherapi":
		return providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey, cfg.WeatherAPIURL), nil
	case "openmeteo":
		return providers.NewOpenMeteoProvider(client, cfg.OpenMeteoAPIURL), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", weather.ErrConfig, cfg.Provider)
	}
}

func newStore(cfg *config.AppConfig, client *http.Client) (weather.Store, weather.Authenticator, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Println("INFO: memory store selected; readings will not be persisted")
		return store.NewMemoryStore(), auth.NewStatic(uuid.New()), nil
	case config.DriverRest, config.DriverPostgres:
	default:
		return nil, nil, fmt.Errorf("%w: unknown store driver %q", weather.ErrConfig, cfg.StoreDriver)
	}

	authenticator := auth.NewClient(client, cfg.SupabaseURL, cfg.ServiceRoleKey, cfg.UserEmail, cfg.UserPassword, cfg.JWTSecret)
	if cfg.StoreDriver == config.DriverRest {
		return store.NewRestStore(client, cfg.SupabaseURL, cfg.ServiceRoleKey), authenticator, nil
	}

	db, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connect to database: %v", weather.ErrWrite, err)
	}
	sqlStore := store.NewSQLStore(db, cfg.RLSRole)
	if cfg.DBAutoMigrate {
		if err := sqlStore.AutoMigrate(); err != nil {
			return nil, nil, fmt.Errorf("%w: migrate: %v", weather.ErrWrite, err)
		}
	}
	return sqlStore, authenticator, nil
}

func serve(cfg *config.AppConfig, service *weather.Service, recorder *metrics.Recorder) error {
	runTimeout := 2*cfg.HTTPTimeout + 30*time.Second

	sched := scheduler.New(cfg.ScheduleCron, cfg.Zone, runTimeout, service)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("%w: %v", weather.ErrConfig, err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, recorder, runTimeout)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}
