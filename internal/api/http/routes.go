package httpapi

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

var validate = validator.New()

// Runner is the part of the ingestion pipeline the HTTP trigger drives.
type Runner interface {
	Run(ctx context.Context, location, date string) ingest.Outcome
	Lookup(ctx context.Context, location, date string) (string, bool, error)
}

// Defaults fills in request fields the caller leaves out.
type Defaults struct {
	Location string
	Date     func() string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, runner Runner, defaults Defaults) {
	v1 := app.Group("/api/v1")

	v1.Post("/ingest", func(c *fiber.Ctx) error {
		var req ingestRequest
		if err := req.bind(c, defaults); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		out := runner.Run(c.UserContext(), req.Location, req.Date)
		return c.Status(StatusFor(out)).JSON(out)
	})

	v1.Get("/records", func(c *fiber.Ctx) error {
		q := recordQuery{
			Location: c.Query("location"),
			Date:     c.Query("date"),
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sourceURL, exists, err := runner.Lookup(c.UserContext(), q.Location, q.Date)
		if err != nil {
			if ingest.KindOf(err) == ingest.KindInvalidRequest {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusBadGateway, "failed to query ledger")
		}

		return c.JSON(fiber.Map{
			"location":   q.Location,
			"date":       q.Date,
			"source_url": sourceURL,
			"exists":     exists,
		})
	})
}

// ingestRequest is accepted as a JSON body or as query parameters.
type ingestRequest struct {
	Location string `json:"location" query:"location"`
	Date     string `json:"date" query:"date"`
}

func (r *ingestRequest) bind(c *fiber.Ctx, defaults Defaults) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(r); err != nil {
			return errors.New("request body must be a JSON object with location and date")
		}
	}
	if r.Location == "" {
		r.Location = c.Query("location")
	}
	if r.Date == "" {
		r.Date = c.Query("date")
	}

	if r.Location == "" {
		r.Location = defaults.Location
	}
	if r.Date == "" && defaults.Date != nil {
		r.Date = defaults.Date()
	}
	return nil
}

// recordQuery holds query parameters for the records endpoint.
type recordQuery struct {
	Location string `validate:"required"`
	Date     string `validate:"required"`
}

// StatusFor maps an outcome onto the response status: ok and skipped are both
// successes, a rejected request is the caller's fault, anything else is upstream.
func StatusFor(out ingest.Outcome) int {
	switch {
	case out.Succeeded():
		return fiber.StatusOK
	case out.Kind == ingest.KindInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusBadGateway
	}
}
