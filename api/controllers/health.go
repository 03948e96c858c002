package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackFinderz-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every configured dependency. Nil pingers are skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, pingers map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackFinderz-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		names := make([]string, 0, len(pingers))
		for name, p := range pingers {
			if p != nil {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		checks := make(map[string]string, len(names))
		var failed []string
		for _, name := range names {
			if err := pingers[name].Ping(ctx); err != nil {
				checks[name] = "down"
				failed = append(failed, name)
				if logg != nil {
					logg.Warn(logg.WithError(logg.WithField(ctx, "dependency", name), err), "health.ready.failed")
				}
				continue
			}
			checks[name] = "up"
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"failed": failed, "checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
