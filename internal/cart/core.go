package cart

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

// Core owns the canonical line items. Every mutation is serialized and
// either applies fully or leaves the cart untouched.
type Core struct {
	mu        sync.RWMutex
	items     []Item
	sessionID string
	lock      lockState
	now       func() time.Time
}

type Option func(*Core)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionID seeds the session id instead of generating one.
func WithSessionID(sessionID string) Option {
	return func(c *Core) {
		c.sessionID = strings.TrimSpace(sessionID)
	}
}

func NewCore(opts ...Option) *Core {
	c := &Core{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.sessionID == "" {
		c.sessionID = NewSessionID(c.now())
	}
	return c
}

// ValidateProduct checks the fields a line item cannot live without.
func ValidateProduct(p Product) error {
	details := map[string]string{}
	if strings.TrimSpace(p.ID) == "" {
		details["id"] = "is required"
	}
	if strings.TrimSpace(p.Name) == "" {
		details["name"] = "is required"
	}
	if p.Price < 0 {
		details["price"] = "must not be negative"
	}
	if p.Stock < 0 {
		details["stock"] = "must not be negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product data").WithDetails(details)
	}
	return nil
}

func (c *Core) AddItem(product Product, quantity int, source enums.ItemSource) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureUnlocked(); err != nil {
		return Snapshot{}, err
	}
	if quantity <= 0 {
		return Snapshot{}, invalidQuantity(quantity)
	}
	if err := ValidateProduct(product); err != nil {
		return Snapshot{}, err
	}
	if !source.IsValid() {
		source = enums.ItemSourceManual
	}

	now := c.now()
	idx := c.indexByProduct(product.ID)
	inCart := 0
	if idx >= 0 {
		inCart = c.items[idx].Quantity
	}
	if inCart+quantity > product.Stock {
		return Snapshot{}, insufficientStock(product, inCart+quantity, inCart)
	}

	if idx >= 0 {
		item := c.items[idx]
		item.Product = product
		item.Quantity = inCart + quantity
		item.LastModified = now
		c.items[idx] = item
	} else {
		c.items = append(c.items, Item{
			ID:           NewItemID(now),
			Product:      product,
			Quantity:     quantity,
			AddedAt:      now,
			LastModified: now,
			Source:       source,
		})
	}
	return c.snapshotLocked(), nil
}

func (c *Core) RemoveItem(itemID string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureUnlocked(); err != nil {
		return Snapshot{}, err
	}
	idx := c.indexByID(itemID)
	if idx < 0 {
		return Snapshot{}, itemNotFound(itemID)
	}
	c.removeAt(idx)
	return c.snapshotLocked(), nil
}

// UpdateQuantity sets the quantity of an existing line; zero removes it.
func (c *Core) UpdateQuantity(itemID string, quantity int) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureUnlocked(); err != nil {
		return Snapshot{}, err
	}
	if quantity < 0 {
		return Snapshot{}, invalidQuantity(quantity)
	}
	idx := c.indexByID(itemID)
	if idx < 0 {
		return Snapshot{}, itemNotFound(itemID)
	}
	if quantity == 0 {
		c.removeAt(idx)
		return c.snapshotLocked(), nil
	}

	item := c.items[idx]
	if quantity > item.Product.Stock {
		return Snapshot{}, insufficientStock(item.Product, quantity, item.Quantity)
	}
	item.Quantity = quantity
	item.LastModified = c.now()
	c.items[idx] = item
	return c.snapshotLocked(), nil
}

// Clear empties the cart unconditionally and releases any checkout lock,
// since clearing is also how a completed order resets the cart.
func (c *Core) Clear() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.lock = lockState{}
	return c.snapshotLocked()
}

// Replace swaps in hydrated contents. An empty session id keeps the current one.
func (c *Core) Replace(snapshot Snapshot) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = copyItems(snapshot.Items)
	if id := strings.TrimSpace(snapshot.SessionID); id != "" {
		c.sessionID = id
	}
	return c.snapshotLocked()
}

// RefreshItem applies a fresh catalog snapshot to a line, clamping the
// quantity to the new stock. A clamped quantity of zero removes the line.
func (c *Core) RefreshItem(itemID string, product Product, quantity int) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexByID(itemID)
	if idx < 0 {
		return Snapshot{}, itemNotFound(itemID)
	}
	if quantity > product.Stock {
		quantity = product.Stock
	}
	if quantity <= 0 {
		c.removeAt(idx)
		return c.snapshotLocked(), nil
	}
	item := c.items[idx]
	item.Product = product
	item.Quantity = quantity
	item.LastModified = c.now()
	c.items[idx] = item
	return c.snapshotLocked(), nil
}

func (c *Core) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Core) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Core) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyItems(c.items)
}

func (c *Core) Item(itemID string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexByID(itemID); idx >= 0 {
		return c.items[idx], true
	}
	return Item{}, false
}

func (c *Core) ItemByProductID(productID string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexByProduct(productID); idx >= 0 {
		return c.items[idx], true
	}
	return Item{}, false
}

func (c *Core) IsInCart(productID string) bool {
	_, ok := c.ItemByProductID(productID)
	return ok
}

func (c *Core) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ItemCount(c.items)
}

func (c *Core) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Subtotal(c.items)
}

func (c *Core) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items) == 0
}

func (c *Core) snapshotLocked() Snapshot {
	return Snapshot{Items: copyItems(c.items), SessionID: c.sessionID}
}

func (c *Core) indexByID(itemID string) int {
	for i := range c.items {
		if c.items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (c *Core) indexByProduct(productID string) int {
	for i := range c.items {
		if c.items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c *Core) removeAt(idx int) {
	next := make([]Item, 0, len(c.items)-1)
	next = append(next, c.items[:idx]...)
	c.items = append(next, c.items[idx+1:]...)
}

func invalidQuantity(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQty, fmt.Sprintf("quantity %d is not a positive integer", quantity)).
		WithDetails(map[string]any{"quantity": quantity})
}

func insufficientStock(product Product, requested, inCart int) error {
	return pkgerrors.New(pkgerrors.CodeNoStock, fmt.Sprintf("only %d of %s available", product.Stock, product.Name)).
		WithDetails(map[string]any{
			"product_id": product.ID,
			"requested":  requested,
			"available":  product.Stock,
			"in_cart":    inCart,
		})
}

func itemNotFound(itemID string) error {
	return pkgerrors.New(pkgerrors.CodeItemMissing, fmt.Sprintf("item %s not found", itemID))
}
