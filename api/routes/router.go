package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-cart/api/controllers"
	cartcontrollers "github.com/angelmondragon/packfinderz-cart/api/controllers/cart"
	"github.com/angelmondragon/packfinderz-cart/api/middleware"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// NewRouter wires the cart API. rateStore may be nil to disable rate
// limiting; metricsHandler may be nil to skip /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry *coordinator.Registry,
	rateStore middleware.RateLimitStore,
	pingers map[string]controllers.Pinger,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	cartPolicy := middleware.NewRateLimitPolicy("cart", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, cfg.RateLimit.SessionLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cartPolicy, rateStore, logg))

		r.Post("/carts", cartcontrollers.CartCreate(registry, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.CartSession(registry, logg))

			r.Get("/", cartcontrollers.CartFetch(logg))
			r.Delete("/", cartcontrollers.CartClear(logg))
			r.Post("/validate", cartcontrollers.CartValidate(logg))
			r.Post("/recover", cartcontrollers.CartRecover(logg))
			r.Post("/lock", cartcontrollers.CartLock(logg))
			r.Delete("/lock", cartcontrollers.CartUnlock(logg))
			r.Post("/checkout", cartcontrollers.CartCheckout(logg))

			r.Route("/items", func(r chi.Router) {
				r.Post("/", cartcontrollers.ItemAdd(logg))
				r.Patch("/{itemID}", cartcontrollers.ItemUpdate(logg))
				r.Delete("/{itemID}", cartcontrollers.ItemRemove(logg))
			})

			r.Post("/selection", cartcontrollers.SelectionUpdate(logg))
			r.Route("/bulk", func(r chi.Router) {
				r.Post("/remove", cartcontrollers.BulkRemove(logg))
				r.Post("/save", cartcontrollers.BulkSave(logg))
				r.Post("/quantity", cartcontrollers.BulkQuantity(logg))
			})

			r.Route("/saved", func(r chi.Router) {
				r.Get("/", cartcontrollers.SavedList(logg))
				r.Post("/", cartcontrollers.SavedCreate(logg))
				r.Post("/{savedID}/restore", cartcontrollers.SavedRestore(logg))
				r.Delete("/{savedID}", cartcontrollers.SavedRemove(logg))
			})

			r.Route("/recommendations", func(r chi.Router) {
				r.Get("/", cartcontrollers.RecommendationsFetch(logg))
				r.Post("/", cartcontrollers.RecommendationsLoad(logg))
				r.Delete("/", cartcontrollers.RecommendationsClear(logg))
			})

			r.Get("/analytics/summary", cartcontrollers.AnalyticsSummary(logg))
		})
	})

	return r
}
