package advanced

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
)

const (
	reasonBoughtTogether = "frequently_bought_together"
	recommendationSource = "cart_analysis"
	defaultConfidence    = 0.8
)

type Recommendation struct {
	ID         string            `json:"id"`
	Product    cart.Product      `json:"product"`
	Reason     string            `json:"reason"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata"`
}

// LoadRecommendations replaces the recommendation list with products related
// to items. A load already in flight makes this call a no-op. Backend
// failures clear the list and are not returned.
func (s *Service) LoadRecommendations(ctx context.Context, items []cart.Item) []Recommendation {
	if !s.recLoading.CompareAndSwap(false, true) {
		return s.Recommendations()
	}
	defer s.recLoading.Store(false)

	if s.recommender == nil || len(items) == 0 {
		s.setRecommendations(nil)
		return nil
	}

	req := buildRequest(items, s.opts.MaxRecommendations)
	loadCtx, cancel := context.WithTimeout(ctx, s.opts.RecommendationTimeout)
	defer cancel()

	resp, err := s.recommender.Recommend(loadCtx, req)
	if err != nil {
		logCtx := s.logg.WithField(ctx, "product_count", len(req.ProductIDs))
		if errors.Is(err, catalog.ErrProductNotFound) {
			s.logg.Info(logCtx, "cart.recommendations.none")
		} else {
			s.logg.Warn(s.logg.WithError(logCtx, err), "cart.recommendations.load_failed")
		}
		s.setRecommendations(nil)
		return nil
	}
	if !resp.Success {
		s.setRecommendations(nil)
		return nil
	}

	algorithm := "unknown"
	if v, ok := resp.Metadata["algorithm"].(string); ok && v != "" {
		algorithm = v
	}
	now := s.opts.Now()
	recs := make([]Recommendation, 0, len(resp.Recommendations))
	for _, product := range resp.Recommendations {
		if len(recs) == s.opts.MaxRecommendations {
			break
		}
		recs = append(recs, Recommendation{
			ID:         cart.NewID(cart.PrefixRecommendation, now),
			Product:    product,
			Reason:     reasonBoughtTogether,
			Confidence: defaultConfidence,
			Metadata:   map[string]string{"source": recommendationSource, "algorithm": algorithm},
		})
	}
	s.setRecommendations(recs)
	return append([]Recommendation{}, recs...)
}

func buildRequest(items []cart.Item, limit int) catalog.Request {
	req := catalog.Request{ProductIDs: []string{}, Categories: []string{}, Limit: limit}
	seenIDs := map[string]struct{}{}
	seenCategories := map[string]struct{}{}
	for _, item := range items {
		if _, ok := seenIDs[item.Product.ID]; !ok {
			seenIDs[item.Product.ID] = struct{}{}
			req.ProductIDs = append(req.ProductIDs, item.Product.ID)
		}
		category := strings.TrimSpace(item.Product.Category)
		if category == "" {
			continue
		}
		if _, ok := seenCategories[category]; !ok {
			seenCategories[category] = struct{}{}
			req.Categories = append(req.Categories, category)
		}
	}
	return req
}

func (s *Service) Recommendations() []Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Recommendation{}, s.recs...)
}

func (s *Service) RecommendationsLoading() bool {
	return s.recLoading.Load()
}

func (s *Service) ClearRecommendations() {
	s.setRecommendations(nil)
}

func (s *Service) setRecommendations(recs []Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = recs
}
