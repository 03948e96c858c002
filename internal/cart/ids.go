package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixItem           = "item"
	PrefixSession        = "cart"
	PrefixSaved          = "saved"
	PrefixRecommendation = "rec"
	PrefixEvent          = "event"

	randomPartLen = 9
)

// NewID returns "<prefix>_<unix millis>_<random>". The random part is drawn
// from a v4 uuid and only contains [a-z0-9].
func NewID(prefix string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:randomPartLen]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), random)
}

func NewItemID(now time.Time) string {
	return NewID(PrefixItem, now)
}

func NewSessionID(now time.Time) string {
	return NewID(PrefixSession, now)
}
