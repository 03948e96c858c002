package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/packfinderz-cart/api/controllers/cart/dto"
	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

func RecommendationsFetch(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.NewRecommendations(c.Recommendations(), c.RecommendationsLoading()))
	}
}

// RecommendationsLoad refreshes recommendations from the cart contents.
// Backend failures leave an empty list rather than an error.
func RecommendationsLoad(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		recs := c.LoadRecommendations(r.Context())
		responses.WriteSuccess(w, cartdto.NewRecommendations(recs, c.RecommendationsLoading()))
	}
}

func RecommendationsClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cartFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c.ClearRecommendations()
		responses.WriteSuccess(w, cartdto.NewRecommendations(nil, false))
	}
}
