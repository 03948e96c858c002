package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter within [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
