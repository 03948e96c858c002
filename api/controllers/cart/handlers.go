package cart

import (
	"context"
	"net/http"

	cartdto "github.com/angelmondragon/packfinderz-cart/api/controllers/cart/dto"
	"github.com/angelmondragon/packfinderz-cart/api/middleware"
	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/api/validators"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/internal/validation"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const maxValidationRetries = 5

type sessionCreator interface {
	Create(ctx context.Context) (*coordinator.Coordinator, error)
}

// CartCreate opens a new cart session and returns its id in the body and the
// X-Cart-Session header.
func CartCreate(registry sessionCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable"))
			return
		}
		c, err := registry.Create(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(middleware.SessionHeader, c.SessionID())
		responses.WriteSuccessStatus(w, http.StatusCreated, view(c, c.State()))
	}
}

// CartFetch returns the cart and records a cart view.
func CartFetch(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, c.TrackCartView(r.Context())))
	}
}

func CartClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := c.ClearCart(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, state))
	}
}

// CartValidate revalidates every line against the catalog. maxRetries > 0
// retries lines whose lookups failed transiently.
func CartValidate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		retries, err := validators.ParseQueryInt(r, "maxRetries", 0, 0, maxValidationRetries)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var report validation.Report
		if retries > 0 {
			report, err = c.ValidateCartWithRetry(r.Context(), retries)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validation interrupted"))
				return
			}
		} else {
			report = c.ValidateCart(r.Context())
		}
		responses.WriteSuccess(w, cartdto.NewValidationReport(report, view(c, c.State())))
	}
}

// CartRecover reloads the stored payload, dropping corrupt entries.
func CartRecover(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, c.RecoverCart(r.Context())))
	}
}

func CartLock(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := c.LockCart(r.Context(), "")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func CartUnlock(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := c.UnlockCart(r.Context(), ""); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, c.LockStatus())
	}
}

// CartCheckout locks the cart, writes it through and records checkout_start.
func CartCheckout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := c.StartCheckout(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, state))
	}
}

func AnalyticsSummary(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, c.AnalyticsSummary())
	}
}

func cartFromRequest(r *http.Request) (*coordinator.Coordinator, error) {
	c := middleware.CartFromContext(r.Context())
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart session not resolved")
	}
	return c, nil
}

func view(c *coordinator.Coordinator, state coordinator.State) cartdto.Cart {
	return cartdto.NewCart(state, c.Selection())
}
