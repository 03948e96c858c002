package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/packfinderz-cart/api/controllers/cart/dto"
	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/api/validators"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const defaultSaveReason = "user_action"

func SavedList(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.NewSavedItems(c.SavedItems()))
	}
}

// SavedCreate moves a cart line to the saved-for-later list.
func SavedCreate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.SaveForLaterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := validators.SanitizeString(payload.Reason, 100)
		if reason == "" {
			reason = defaultSaveReason
		}

		saved, err := c.SaveItemForLater(r.Context(), validators.SanitizeString(payload.ItemID, 100), reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartdto.SavedItemResult{Item: saved, Cart: view(c, c.State())})
	}
}

func SavedRestore(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		savedID, err := pathParam(r, "savedID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		restored, err := c.RestoreFromSaved(r.Context(), savedID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.SavedItemResult{Item: restored, Cart: view(c, c.State())})
	}
}

func SavedRemove(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		savedID, err := pathParam(r, "savedID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := c.RemoveFromSavedForLater(savedID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.NewSavedItems(c.SavedItems()))
	}
}
