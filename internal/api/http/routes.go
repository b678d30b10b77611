package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-dashboard/internal/playback"
	"github.com/i474232898/weather-dashboard/internal/scheduler"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

var validate = validator.New()

// Dashboard is the part of weather.Service the handlers use.
type Dashboard interface {
	SetLocation(ctx context.Context, loc weather.Location) (weather.Forecast, error)
	Location() (weather.Location, error)
	Forecast() (weather.Forecast, error)
	Alerts() (weather.AlertSet, error)
	AlertHistory(from, to time.Time) ([]weather.AlertSet, error)
	Frames(layer string) (weather.FrameView, error)
	Playback() *playback.Controller
	Stats() []scheduler.Stats
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Dashboard) {
	v1 := app.Group("/api/v1")

	v1.Get("/location", func(c *fiber.Ctx) error {
		loc, err := service.Location()
		if err != nil {
			return mapError(err)
		}
		return c.JSON(loc)
	})

	v1.Put("/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		forecast, err := service.SetLocation(c.UserContext(), req.toLocation())
		if err != nil {
			return mapError(err)
		}
		return c.JSON(forecast)
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		forecast, err := service.Forecast()
		if err != nil {
			return mapError(err)
		}
		return c.JSON(forecast)
	})

	v1.Get("/frames", func(c *fiber.Ctx) error {
		view, err := service.Frames(c.Query("layer", weather.LayerRadar))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{
			"layer":    view.Layer,
			"frames":   view.Frames,
			"index":    view.Index,
			"playback": service.Playback().State(),
		})
	})

	v1.Get("/alerts", func(c *fiber.Ctx) error {
		set, err := service.Alerts()
		if err != nil {
			return mapError(err)
		}
		return c.JSON(set)
	})

	v1.Get("/alerts/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sets, err := service.AlertHistory(req.From, req.To)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{
			"from": req.From,
			"to":   req.To,
			"sets": sets,
		})
	})

	v1.Get("/playback", func(c *fiber.Ctx) error {
		return c.JSON(service.Playback().State())
	})

	v1.Post("/playback/play", func(c *fiber.Ctx) error {
		service.Playback().Play()
		return c.JSON(service.Playback().State())
	})

	v1.Post("/playback/pause", func(c *fiber.Ctx) error {
		service.Playback().Pause()
		return c.JSON(service.Playback().State())
	})

	v1.Post("/playback/ready", func(c *fiber.Ctx) error {
		ready := true
		if v := c.Query("ready"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "ready must be a boolean")
			}
			ready = b
		}
		service.Playback().SetReady(ready)
		return c.JSON(service.Playback().State())
	})

	v1.Post("/playback/seek", func(c *fiber.Ctx) error {
		var req seekRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		service.Playback().SetIndex(*req.Index)
		return c.JSON(service.Playback().State())
	})

	v1.Get("/pollers", func(c *fiber.Ctx) error {
		return c.JSON(service.Stats())
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, weather.ErrNoLocation):
		return fiber.NewError(fiber.StatusNotFound, "no location selected")
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no data for requested range")
	case errors.Is(err, weather.ErrUnknownLayer):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrPrimaryUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "forecast temporarily unavailable")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}

// locationRequest is the body of PUT /location.
type locationRequest struct {
	Name  string   `json:"name"`
	Lat   *float64 `json:"lat" validate:"required,latitude"`
	Lon   *float64 `json:"lon" validate:"required,longitude"`
	State string   `json:"state" validate:"omitempty,alpha,len=2"`
}

func (l locationRequest) toLocation() weather.Location {
	return weather.Location{
		Name:  l.Name,
		Lat:   *l.Lat,
		Lon:   *l.Lon,
		State: strings.ToUpper(l.State),
	}
}

type seekRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

// historyQuery holds query parameters for the alert history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
