package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	cartdto "github.com/angelmondragon/packfinderz-cart/api/controllers/cart/dto"
	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/api/validators"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// ItemAdd adds a product, merging into the existing line for that product.
func ItemAdd(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		source := enums.ItemSourceManual
		if payload.Source != "" {
			if source, err = enums.ParseItemSource(payload.Source); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item source"))
				return
			}
		}

		state, err := c.AddItemFrom(r.Context(), payload.Product.Product(), payload.QuantityOrDefault(), source)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view(c, state))
	}
}

// ItemUpdate sets the quantity of a line. Zero removes it.
func ItemUpdate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.UpdateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := c.UpdateQuantity(r.Context(), itemID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, state))
	}
}

func ItemRemove(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := c.RemoveItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, state))
	}
}

func itemIDParam(r *http.Request) (string, error) {
	return pathParam(r, "itemID")
}

func pathParam(r *http.Request, name string) (string, error) {
	value := validators.SanitizeString(chi.URLParam(r, name), 100)
	if value == "" || strings.ContainsAny(value, "/ ") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return value, nil
}
