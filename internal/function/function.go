// Package function exposes the ingestion pipeline as a Cloud Functions HTTP
// trigger named IngestWeather.
package function

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-ingest/internal/api/http"
	"github.com/i474232898/weather-ingest/internal/app"
	"github.com/i474232898/weather-ingest/internal/config"
	"github.com/i474232898/weather-ingest/internal/logging"
)

func init() {
	functions.HTTP("IngestWeather", newHandler(bootstrap))
}

// bootstrap builds the App from the environment. INGEST_CONFIG optionally
// names a YAML file.
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(os.Getenv("INGEST_CONFIG"))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger)
}

// newHandler returns the trigger. The App is built on the first request and
// reused by warm instances; a failed bootstrap is retried on the next request.
func newHandler(boot func(context.Context) (*app.App, error)) http.HandlerFunc {
	var (
		mu  sync.Mutex
		cur *app.App
	)
	get := func(ctx context.Context) (*app.App, error) {
		mu.Lock()
		defer mu.Unlock()
		if cur != nil {
			return cur, nil
		}
		a, err := boot(ctx)
		if err != nil {
			return nil, err
		}
		cur = a
		return cur, nil
	}

	return func(w http.ResponseWriter, r *http.Request) {
		a, err := get(r.Context())
		if err != nil {
			zap.L().Error("function bootstrap failed", zap.Error(err))
			http.Error(w, "ingestion is not configured", http.StatusInternalServerError)
			return
		}

		location := r.URL.Query().Get("location")
		if location == "" {
			location = a.Config.Location
		}
		date := r.URL.Query().Get("date")
		if date == "" {
			date = a.Config.DefaultDate()
		}

		out := a.Run(r.Context(), location, date)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpapi.StatusFor(out))
		if err := json.NewEncoder(w).Encode(out); err != nil {
			a.Logger.Warn("write response", zap.Error(err))
		}
	}
}
