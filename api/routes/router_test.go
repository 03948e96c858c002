package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-cart/api/controllers"
	cartdto "github.com/angelmondragon/packfinderz-cart/api/controllers/cart/dto"
	"github.com/angelmondragon/packfinderz-cart/api/middleware"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/internal/persistence"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type server struct {
	t       *testing.T
	handler http.Handler
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func newServer(t *testing.T, pingers map[string]controllers.Pinger) *server {
	t.Helper()
	store := persistence.NewMemoryStorage(0)
	reg := prometheus.NewRegistry()
	cartMetrics := metrics.NewCartMetrics(reg)

	registry, err := coordinator.NewRegistry(func(ctx context.Context, sessionID string) (*coordinator.Coordinator, error) {
		return coordinator.New(coordinator.Dependencies{Primary: store, Metrics: cartMetrics}, coordinator.Options{
			SessionID:   sessionID,
			Persistence: persistence.Options{Debounce: time.Hour},
		}, nil)
	}, coordinator.RegistryOptions{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	handler := NewRouter(testConfig(), nil, registry, nil, pingers, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &server{t: t, handler: handler}
}

func (s *server) do(method, path, session string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(middleware.SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) createSession() string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/carts", "", nil)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	session := rec.Header().Get(middleware.SessionHeader)
	require.NotEmpty(s.t, session)
	return session
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope), rec.Body.String())
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope), rec.Body.String())
	return envelope.Error.Code
}

func soap(qty int) map[string]any {
	return map[string]any{
		"product": map[string]any{
			"id": "p1", "slug": "lavender-soap", "name": "Lavender Soap",
			"price": 10.99, "stock": 5, "category": "bath",
			"images": "https://cdn.example.com/soap.png",
		},
		"quantity": qty,
	}
}

func candle() map[string]any {
	return map[string]any{
		"product": map[string]any{"id": "p2", "name": "Beeswax Candle", "price": 4.5, "stock": 10},
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newServer(t, map[string]controllers.Pinger{"db": stubPinger{}, "redis": nil})

	rec := srv.do(http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-PackFinderz-Env"))

	rec = srv.do(http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"db": "up"}, ready["checks"])

	down := newServer(t, map[string]controllers.Pinger{"db": stubPinger{err: errors.New("refused")}})
	rec = down.do(http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, rec))
}

func TestAddItemScenarioOverHTTP(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()

	rec := srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[cartdto.Cart](t, rec)
	assert.Equal(t, 2, got.ItemCount)
	assert.Equal(t, "21.98", got.Subtotal)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "https://cdn.example.com/soap.png", got.Items[0].Product.Images.Primary())

	rec = srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(2))
	require.Equal(t, http.StatusCreated, rec.Code)
	got = decode[cartdto.Cart](t, rec)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 4, got.Items[0].Quantity)
	assert.Equal(t, "43.96", got.Items[0].LineTotal)

	rec = srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(2))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNoStock), errorCode(t, rec))

	rec = srv.do(http.MethodGet, "/api/v1/cart", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[cartdto.Cart](t, rec).ItemCount)
}

func TestItemUpdateAndRemove(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()

	rec := srv.do(http.MethodPost, "/api/v1/cart/items", session, candle())
	require.Equal(t, http.StatusCreated, rec.Code)
	itemID := decode[cartdto.Cart](t, rec).Items[0].ID

	rec = srv.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, session, map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[cartdto.Cart](t, rec).ItemCount)

	rec = srv.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, session, map[string]any{"quantity": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInvalidQty), errorCode(t, rec))

	rec = srv.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, session, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))

	rec = srv.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, session, map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartdto.Cart](t, rec).Items)

	rec = srv.do(http.MethodDelete, "/api/v1/cart/items/"+itemID, session, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeItemMissing), errorCode(t, rec))
}

func TestRequestValidation(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()

	rec := srv.do(http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/cart", "not-a-session", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/cart/items", session, map[string]any{"product": map[string]any{"id": "p1"}, "surprise": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/cart/items", session, map[string]any{"product": map[string]any{"id": "p1", "price": 1, "stock": 1}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/cart/selection", session, map[string]any{"action": "shuffle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/cart/validate?maxRetries=99", session, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsAreIsolatedAndRehydrated(t *testing.T) {
	srv := newServer(t, nil)
	first := srv.createSession()
	second := srv.createSession()
	require.NotEqual(t, first, second)

	rec := srv.do(http.MethodPost, "/api/v1/cart/items", first, soap(1))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/cart", second, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartdto.Cart](t, rec).Items)
	assert.Equal(t, second, rec.Header().Get(middleware.SessionHeader))
}

func TestLockAndCheckout(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()

	rec := srv.do(http.MethodPost, "/api/v1/cart/checkout", session, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "empty cart cannot check out")

	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(1)).Code)

	rec = srv.do(http.MethodPost, "/api/v1/cart/lock", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]any](t, rec)["locked"].(bool))

	rec = srv.do(http.MethodPost, "/api/v1/cart/items", session, candle())
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeCartLocked), errorCode(t, rec))

	require.Equal(t, http.StatusOK, srv.do(http.MethodDelete, "/api/v1/cart/lock", session, nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/cart/items", session, candle()).Code)

	rec = srv.do(http.MethodPost, "/api/v1/cart/checkout", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[cartdto.Cart](t, rec).Lock.Locked)

	rec = srv.do(http.MethodGet, "/api/v1/cart/analytics/summary", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), summary["addToCartEvents"])
}

func TestSelectionBulkAndSavedFlow(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()

	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(2)).Code)
	rec := srv.do(http.MethodPost, "/api/v1/cart/items", session, candle())
	require.Equal(t, http.StatusCreated, rec.Code)
	items := decode[cartdto.Cart](t, rec).Items
	require.Len(t, items, 2)

	rec = srv.do(http.MethodPost, "/api/v1/cart/selection", session, map[string]any{"action": "select", "itemIds": []string{items[0].ID, "item_ghost"}})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[cartdto.Cart](t, rec)
	assert.Equal(t, []string{items[0].ID}, got.Selection.ItemIDs)
	assert.True(t, got.Items[0].Selected)
	assert.False(t, got.Items[1].Selected)

	rec = srv.do(http.MethodPost, "/api/v1/cart/bulk/save", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bulk := decode[cartdto.BulkResult](t, rec)
	assert.Equal(t, []string{items[0].ID}, bulk.Processed)
	assert.Empty(t, bulk.Failed)
	require.Len(t, bulk.Saved, 1)
	assert.Len(t, bulk.Cart.Items, 1)
	assert.Empty(t, bulk.Cart.Selection.ItemIDs)

	rec = srv.do(http.MethodGet, "/api/v1/cart/saved", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[cartdto.SavedItems](t, rec)
	require.Equal(t, 1, saved.Count)
	savedID := saved.Items[0].ID

	rec = srv.do(http.MethodPost, "/api/v1/cart/saved/"+savedID+"/restore", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	restored := decode[cartdto.SavedItemResult](t, rec)
	assert.Equal(t, 3, restored.Cart.ItemCount)

	rec = srv.do(http.MethodDelete, "/api/v1/cart/saved/"+savedID, session, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeSavedMissing), errorCode(t, rec))

	rec = srv.do(http.MethodPost, "/api/v1/cart/selection", session, map[string]any{"action": "select_all"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(http.MethodPost, "/api/v1/cart/bulk/quantity", session, map[string]any{"quantity": 6})
	require.Equal(t, http.StatusOK, rec.Code)
	bulk = decode[cartdto.BulkResult](t, rec)
	require.Len(t, bulk.Failed, 1, "soap has stock 5")
	assert.Equal(t, string(pkgerrors.CodeNoStock), bulk.Failed[0].Code)
	assert.Len(t, bulk.Processed, 1)

	rec = srv.do(http.MethodPost, "/api/v1/cart/selection", session, map[string]any{"action": "select_all"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(http.MethodPost, "/api/v1/cart/bulk/remove", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartdto.BulkResult](t, rec).Cart.Items)
}

func TestRecommendationsWithoutBackendAreEmpty(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(1)).Code)

	rec := srv.do(http.MethodPost, "/api/v1/cart/recommendations", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recs := decode[cartdto.Recommendations](t, rec)
	assert.Empty(t, recs.Items)
	assert.False(t, recs.Loading)

	require.Equal(t, http.StatusOK, srv.do(http.MethodDelete, "/api/v1/cart/recommendations", session, nil).Code)
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/cart/recommendations", session, nil).Code)
}

func TestClearAndValidate(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(1)).Code)

	rec := srv.do(http.MethodPost, "/api/v1/cart/validate", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[cartdto.ValidationReport](t, rec)
	assert.Equal(t, 1, report.Cart.ItemCount)

	rec = srv.do(http.MethodDelete, "/api/v1/cart", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartdto.Cart](t, rec).Items)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, nil)
	session := srv.createSession()
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/cart/items", session, soap(1)).Code)

	rec := srv.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart_operation_total")
}
