package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/packfinderz-cart/api/controllers/cart/dto"
	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/api/validators"
	"github.com/angelmondragon/packfinderz-cart/internal/advanced"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// SelectionUpdate applies {action, itemIds} and returns the cart with the
// resulting selection.
func SelectionUpdate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.SelectionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseSelectionAction(payload.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid selection action"))
			return
		}
		if _, err := c.Select(action, payload.ItemIDs); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view(c, c.State()))
	}
}

func BulkRemove(logg *logger.Logger) http.HandlerFunc {
	return bulkHandler(logg, func(r *http.Request, c *coordinator.Coordinator) (advanced.BulkResult, error) {
		return c.BulkRemoveSelected(r.Context())
	})
}

func BulkSave(logg *logger.Logger) http.HandlerFunc {
	return bulkHandler(logg, func(r *http.Request, c *coordinator.Coordinator) (advanced.BulkResult, error) {
		return c.MoveSelectedToSavedForLater(r.Context())
	})
}

func BulkQuantity(logg *logger.Logger) http.HandlerFunc {
	return bulkHandler(logg, func(r *http.Request, c *coordinator.Coordinator) (advanced.BulkResult, error) {
		var payload cartdto.UpdateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return advanced.BulkResult{}, err
		}
		return c.BulkUpdateQuantity(r.Context(), *payload.Quantity)
	})
}

// bulkHandler reports per-item failures in the body; only a rejected batch
// is an error response.
func bulkHandler(logg *logger.Logger, run func(*http.Request, *coordinator.Coordinator) (advanced.BulkResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := run(r, c)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if failed := res.Err(); failed != nil && logg != nil {
			logg.Warn(logg.WithError(r.Context(), failed), "cart.bulk.partial_failure")
		}
		responses.WriteSuccess(w, cartdto.NewBulkResult(res, view(c, c.State()), errorCode))
	}
}

func errorCode(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
