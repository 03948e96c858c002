package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const (
	DefaultFetchTimeout       = 5 * time.Second
	DefaultMaxRetries         = 3
	DefaultBackgroundInterval = 30 * time.Second
	DefaultBackgroundBatch    = 3
	DefaultConcurrency        = 4
)

// Removal reasons passed to Callbacks.Remove.
const (
	ReasonNotFound   = "not_found"
	ReasonInactive   = "inactive"
	ReasonOutOfStock = "out_of_stock"
)

type Outcome string

const (
	OutcomeValid     Outcome = "valid"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeRemoved   Outcome = "removed"
	OutcomeTransient Outcome = "transient"
)

// Callbacks apply validation verdicts to the cart that owns the items.
type Callbacks struct {
	Remove  func(ctx context.Context, item cart.Item, reason string) error
	Refresh func(ctx context.Context, item cart.Item, product cart.Product, quantity int) error
}

type ItemResult struct {
	ItemID    string  `json:"itemId"`
	ProductID string  `json:"productId"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	Quantity  int     `json:"quantity"`
	Err       error   `json:"-"`
}

// Report summarizes one validation pass. Transient failures are reported
// here, never returned as errors.
type Report struct {
	Results   []ItemResult `json:"results"`
	Valid     int          `json:"valid"`
	Refreshed int          `json:"refreshed"`
	Removed   int          `json:"removed"`
	Transient int          `json:"transient"`
}

func (r Report) HasTransient() bool {
	return r.Transient > 0
}

// Changed reports whether any item was refreshed or removed.
func (r Report) Changed() bool {
	return r.Refreshed > 0 || r.Removed > 0
}

// Supersede returns r with the results of items re-checked in next replacing
// their earlier entries. Order follows r.
func (r Report) Supersede(next Report) Report {
	latest := make(map[string]ItemResult, len(next.Results))
	for _, res := range next.Results {
		latest[res.ItemID] = res
	}
	var out Report
	for _, res := range r.Results {
		if replaced, ok := latest[res.ItemID]; ok {
			res = replaced
		}
		out.add(res)
	}
	return out
}

func (r *Report) add(res ItemResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeValid:
		r.Valid++
	case OutcomeRefreshed:
		r.Refreshed++
	case OutcomeRemoved:
		r.Removed++
	case OutcomeTransient:
		r.Transient++
	}
}

type Options struct {
	CacheTTL           time.Duration
	FetchTimeout       time.Duration
	MaxRetries         int
	BackgroundInterval time.Duration
	BackgroundBatch    int
	Concurrency        int
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackgroundInterval <= 0 {
		o.BackgroundInterval = DefaultBackgroundInterval
	}
	if o.BackgroundBatch <= 0 {
		o.BackgroundBatch = DefaultBackgroundBatch
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service revalidates cart items against the catalog.
type Service struct {
	fetcher catalog.ProductFetcher
	opts    Options
	logg    *logger.Logger
	cache   *cache
	queue   *queue
	group   singleflight.Group
}

func NewService(fetcher catalog.ProductFetcher, opts Options, logg *logger.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("product fetcher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	opts = opts.withDefaults()
	return &Service{
		fetcher: fetcher,
		opts:    opts,
		logg:    logg,
		cache:   newCache(opts.CacheTTL, opts.Now),
		queue:   newQueue(),
	}, nil
}

// ValidateCart checks every item, fetching in parallel, and applies the
// verdicts through callbacks in item order.
func (s *Service) ValidateCart(ctx context.Context, items []cart.Item, cb Callbacks) Report {
	entries := make([]entry, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			entries[i], errs[i] = s.lookup(ctx, item.Product)
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	for i, item := range items {
		if errs[i] != nil {
			s.logg.Warn(s.logg.WithError(s.logg.WithProductID(ctx, item.Product.ID), errs[i]), "cart.validation.fetch_failed")
			report.add(transient(item, errs[i]))
			continue
		}
		report.add(s.apply(ctx, item, entries[i], cb))
	}
	return report
}

// ValidateItem checks a single item.
func (s *Service) ValidateItem(ctx context.Context, item cart.Item, cb Callbacks) ItemResult {
	return s.ValidateCart(ctx, []cart.Item{item}, cb).Results[0]
}

func (s *Service) apply(ctx context.Context, item cart.Item, e entry, cb Callbacks) ItemResult {
	res := ItemResult{ItemID: item.ID, ProductID: item.Product.ID, Quantity: item.Quantity}

	reason := removalReason(e)
	if reason != "" {
		if cb.Remove != nil {
			if err := cb.Remove(ctx, item, reason); err != nil {
				return transient(item, err)
			}
		}
		res.Outcome = OutcomeRemoved
		res.Reason = reason
		res.Quantity = 0
		return res
	}

	fresh := merge(item.Product, e.snapshot.Product)
	quantity := item.Quantity
	if quantity > fresh.Stock {
		quantity = fresh.Stock
	}
	if !changed(item.Product, fresh) && quantity == item.Quantity {
		res.Outcome = OutcomeValid
		return res
	}
	if cb.Refresh != nil {
		if err := cb.Refresh(ctx, item, fresh, quantity); err != nil {
			return transient(item, err)
		}
	}
	res.Outcome = OutcomeRefreshed
	res.Quantity = quantity
	return res
}

func transient(item cart.Item, err error) ItemResult {
	return ItemResult{
		ItemID:    item.ID,
		ProductID: item.Product.ID,
		Outcome:   OutcomeTransient,
		Quantity:  item.Quantity,
		Err:       pkgerrors.Wrap(pkgerrors.CodeValidationTransient, err, "product could not be validated"),
	}
}

func removalReason(e entry) string {
	switch {
	case !e.found:
		return ReasonNotFound
	case !e.snapshot.Active:
		return ReasonInactive
	case e.snapshot.Product.Stock <= 0:
		return ReasonOutOfStock
	default:
		return ""
	}
}

// merge overlays the catalog view on the cart snapshot, keeping fields the
// catalog left empty.
func merge(current, fresh cart.Product) cart.Product {
	out := fresh
	out.ID = current.ID
	if out.Slug == "" {
		out.Slug = current.Slug
	}
	if out.Name == "" {
		out.Name = current.Name
	}
	if len(out.Images) == 0 {
		out.Images = current.Images
	}
	if out.Category == "" {
		out.Category = current.Category
	}
	if out.Dimensions == nil {
		out.Dimensions = current.Dimensions
	}
	if out.Attributes == nil {
		out.Attributes = current.Attributes
	}
	if out.Weight == 0 {
		out.Weight = current.Weight
	}
	return out
}

func changed(a, b cart.Product) bool {
	return a.Price != b.Price || a.Stock != b.Stock || a.Name != b.Name
}

// lookup answers from the cache or fetches once per product, however many
// callers are waiting on it.
func (s *Service) lookup(ctx context.Context, product cart.Product) (entry, error) {
	if e, ok := s.cache.get(product.ID); ok {
		return e, nil
	}
	v, err, _ := s.group.Do(product.ID, func() (any, error) {
		if e, ok := s.cache.get(product.ID); ok {
			return e, nil
		}
		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()

		snap, err := s.fetcher.FetchProduct(fetchCtx, lookupKey(product))
		if errors.Is(err, catalog.ErrProductNotFound) {
			e := entry{found: false, checkedAt: s.opts.Now()}
			s.cache.put(product.ID, e)
			return e, nil
		}
		if err != nil {
			return entry{}, err
		}
		e := entry{snapshot: snap, found: true, checkedAt: s.opts.Now()}
		s.cache.put(product.ID, e)
		return e, nil
	})
	if err != nil {
		return entry{}, err
	}
	return v.(entry), nil
}

func lookupKey(p cart.Product) string {
	if slug := strings.TrimSpace(p.Slug); slug != "" {
		return slug
	}
	return p.ID
}

// Warm queues a freshly added product for high-priority background
// validation. Client-supplied snapshots never seed the cache directly.
func (s *Service) Warm(_ context.Context, product cart.Product) error {
	if _, ok := s.cache.get(product.ID); ok {
		return nil
	}
	return s.Enqueue(product, enums.ValidationPriorityHigh)
}

// Enqueue schedules a product for background validation.
func (s *Service) Enqueue(product cart.Product, priority enums.ValidationPriority) error {
	if strings.TrimSpace(product.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if !priority.IsValid() {
		priority = enums.ValidationPriorityMedium
	}
	s.queue.push(product, priority, s.opts.Now())
	return nil
}

// Queued returns the pending background work in processing order.
func (s *Service) Queued() []QueuedItem {
	return s.queue.peek(0)
}

// Invalidate forgets a cached answer.
func (s *Service) Invalidate(productID string) {
	s.cache.forget(productID)
}

// Reset drops the cache and the queue.
func (s *Service) Reset() {
	s.cache.clear()
	s.queue.clear()
}

func (s *Service) CacheSize() int {
	return s.cache.len()
}

// ProcessQueue validates one batch of queued products and returns how many
// completed. Failed fetches stay queued until they exhaust their retries.
func (s *Service) ProcessQueue(ctx context.Context) int {
	batch := s.queue.peek(s.opts.BackgroundBatch)
	if len(batch) == 0 {
		return 0
	}
	errs := make([]error, len(batch))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, queued := range batch {
		g.Go(func() error {
			_, errs[i] = s.lookup(ctx, queued.Product)
			return nil
		})
	}
	_ = g.Wait()

	done := 0
	for i, queued := range batch {
		if errs[i] == nil {
			s.queue.done(queued.Product.ID)
			done++
			continue
		}
		pctx := s.logg.WithError(s.logg.WithProductID(ctx, queued.Product.ID), errs[i])
		if !s.queue.retry(queued.Product.ID, s.opts.MaxRetries) {
			s.logg.Warn(pctx, "cart.validation.queue_dropped")
			continue
		}
		s.logg.Debug(pctx, "cart.validation.queue_retry")
	}
	return done
}

// Run processes the queue and prunes the cache until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.BackgroundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.ProcessQueue(ctx)
			s.cache.prune()
		}
	}
}
