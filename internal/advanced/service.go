package advanced

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const (
	DefaultMaxRecommendations    = 5
	DefaultRecommendationTimeout = 5 * time.Second
)

// Callbacks into the live cart. The advanced features never touch cart
// state directly.
type (
	RemoveFunc func(ctx context.Context, itemID string) error
	AddFunc    func(ctx context.Context, product cart.Product, quantity int) error
	UpdateFunc func(ctx context.Context, itemID string, quantity int) error
)

type Options struct {
	MaxRecommendations    int
	RecommendationTimeout time.Duration
	Now                   func() time.Time
}

// Service holds the per-cart selection, saved-for-later list and
// recommendations.
type Service struct {
	recommender catalog.Recommender
	opts        Options
	logg        *logger.Logger

	mu        sync.RWMutex
	selected  map[string]struct{}
	order     []string
	saved     []SavedItem
	recs      []Recommendation

	bulk       atomic.Bool
	recLoading atomic.Bool
}

// NewService builds the advanced features. recommender may be nil, in
// which case recommendations always load empty.
func NewService(recommender catalog.Recommender, opts Options, logg *logger.Logger) *Service {
	if opts.MaxRecommendations <= 0 {
		opts.MaxRecommendations = DefaultMaxRecommendations
	}
	if opts.RecommendationTimeout <= 0 {
		opts.RecommendationTimeout = DefaultRecommendationTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		recommender: recommender,
		opts:        opts,
		logg:        logg,
		selected:    make(map[string]struct{}),
	}
}
