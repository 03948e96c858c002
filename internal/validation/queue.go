package validation

import (
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

// QueuedItem is a product waiting for background validation.
type QueuedItem struct {
	Product    cart.Product             `json:"product"`
	Priority   enums.ValidationPriority `json:"priority"`
	EnqueuedAt time.Time                `json:"enqueuedAt"`
	Retries    int                      `json:"retries"`
}

func priorityWeight(p enums.ValidationPriority) int {
	switch p {
	case enums.ValidationPriorityHigh:
		return 3
	case enums.ValidationPriorityMedium:
		return 2
	default:
		return 1
	}
}

type queue struct {
	mu      sync.Mutex
	entries map[string]*QueuedItem
}

func newQueue() *queue {
	return &queue{entries: make(map[string]*QueuedItem)}
}

// push adds a product or raises the priority of an existing entry. The
// original enqueue time is kept so re-adds do not jump the line.
func (q *queue) push(product cart.Product, priority enums.ValidationPriority, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.entries[product.ID]; ok {
		existing.Product = product
		if priorityWeight(priority) > priorityWeight(existing.Priority) {
			existing.Priority = priority
		}
		return
	}
	q.entries[product.ID] = &QueuedItem{Product: product, Priority: priority, EnqueuedAt: now}
}

// peek returns up to n entries, highest priority first, then oldest first.
func (q *queue) peek(n int) []QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedItem, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := priorityWeight(out[i].Priority), priorityWeight(out[j].Priority)
		if wi != wj {
			return wi > wj
		}
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].Product.ID < out[j].Product.ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (q *queue) done(productID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, productID)
}

// retry bumps the retry count and drops the entry once it reaches max.
// It reports whether the entry is still queued.
func (q *queue) retry(productID string, max int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[productID]
	if !ok {
		return false
	}
	e.Retries++
	if e.Retries >= max {
		delete(q.entries, productID)
		return false
	}
	return true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *queue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*QueuedItem)
}
