package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-period-tracker/internal/weather"
)

var validate = validator.New()

// Pipeline is the part of weather.Service exposed over HTTP.
type Pipeline interface {
	Location() weather.Location
	RunYesterday(ctx context.Context) (weather.RunResult, error)
	ListReadings(ctx context.Context, date time.Time) ([]weather.Reading, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. runTimeout bounds
// manually triggered runs.
func RegisterRoutes(app *fiber.App, service Pipeline, runTimeout time.Duration) {
	v1 := app.Group("/api/v1")

	v1.Get("/readings", func(c *fiber.Ctx) error {
		q := readingsQuery{Date: c.Query("date")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date query parameter must be YYYY-MM-DD")
		}
		date, err := weather.ParseDate(q.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := service.ListReadings(c.UserContext(), date)
		if err != nil {
			return toFiberError(err, "failed to list readings")
		}
		if readings == nil {
			readings = []weather.Reading{}
		}

		return c.JSON(fiber.Map{
			"location": service.Location().Name(),
			"date":     q.Date,
			"readings": readings,
		})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), runTimeout)
		defer cancel()

		res, err := service.RunYesterday(ctx)
		if err != nil {
			return toFiberError(err, "weather ingest run failed")
		}
		return c.Status(fiber.StatusOK).JSON(res)
	})
}

// readingsQuery holds query parameters for the readings endpoint.
type readingsQuery struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

// toFiberError maps pipeline error kinds to HTTP statuses.
func toFiberError(err error, msg string) error {
	switch {
	case errors.Is(err, weather.ErrFetch):
		return fiber.NewError(fiber.StatusBadGateway, msg+": "+err.Error())
	case errors.Is(err, weather.ErrAggregation):
		return fiber.NewError(fiber.StatusUnprocessableEntity, msg+": "+err.Error())
	case errors.Is(err, weather.ErrAuth):
		return fiber.NewError(fiber.StatusUnauthorized, msg+": "+err.Error())
	case errors.Is(err, weather.ErrWrite):
		return fiber.NewError(fiber.StatusBadGateway, msg+": "+err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, msg)
	}
}
