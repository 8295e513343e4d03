package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-blob-pipeline/internal/store"
)

var validate = validator.New()

// RunReader reads recorded pipeline runs.
type RunReader interface {
	Get(id string) (store.Run, error)
	Latest() (store.Run, error)
	Range(from, to time.Time) ([]store.Run, error)
}

// Trigger starts pipeline runs on demand.
type Trigger interface {
	Trigger() string
	NextRun() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, runs RunReader, trigger Trigger, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := app.Group("/api/v1")

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		run, err := runs.Latest()
		if err != nil {
			return runError(err, "no pipeline run recorded yet")
		}
		return c.JSON(run)
	})

	v1.Get("/runs/:id", func(c *fiber.Ctx) error {
		run, err := runs.Get(c.Params("id"))
		if err != nil {
			return runError(err, "no pipeline run with this id")
		}
		return c.JSON(run)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		list, err := runs.Range(req.From, req.To)
		if err != nil {
			return runError(err, "no pipeline runs in requested range")
		}

		return c.JSON(fiber.Map{
			"from": req.From,
			"to":   req.To,
			"runs": list,
		})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		id := trigger.Trigger()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"id":      id,
			"trigger": store.TriggerManual,
		})
	})

	v1.Get("/schedule", func(c *fiber.Ctx) error {
		next := trigger.NextRun()
		if next.IsZero() {
			return fiber.NewError(fiber.StatusServiceUnavailable, "scheduler not started")
		}
		return c.JSON(fiber.Map{"nextRun": next})
	})
}

func runError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read pipeline runs")
}

// historyQuery holds query parameters for the run history endpoint.
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
