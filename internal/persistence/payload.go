package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
)

const PayloadVersion = "1.0"

// State is the part of the cart that survives a reload.
type State struct {
	Items      []cart.Item
	SessionID  string
	LastSyncAt *time.Time
}

// Payload is the serialized form written to every backend.
type Payload struct {
	Items      []cart.Item `json:"items"`
	SessionID  string      `json:"sessionId"`
	LastSyncAt *time.Time  `json:"lastSyncAt"`
	Timestamp  time.Time   `json:"timestamp"`
	Version    string      `json:"version"`
}

type rawPayload struct {
	Items      []json.RawMessage `json:"items"`
	SessionID  string            `json:"sessionId"`
	LastSyncAt *time.Time        `json:"lastSyncAt"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
}

func encodePayload(state State, now time.Time) (string, error) {
	items := state.Items
	if items == nil {
		items = []cart.Item{}
	}
	data, err := json.Marshal(Payload{
		Items:      items,
		SessionID:  state.SessionID,
		LastSyncAt: state.LastSyncAt,
		Timestamp:  now.UTC(),
		Version:    PayloadVersion,
	})
	if err != nil {
		return "", fmt.Errorf("encode cart payload: %w", err)
	}
	return string(data), nil
}

// decodePayload parses a stored payload, keeping every structurally valid
// item. It fails only when the envelope itself is unreadable. The second
// return value counts dropped items.
func decodePayload(data string) (Payload, int, error) {
	var raw rawPayload
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return Payload{}, 0, fmt.Errorf("decode cart payload: %w", err)
	}

	out := Payload{
		Items:      make([]cart.Item, 0, len(raw.Items)),
		SessionID:  strings.TrimSpace(raw.SessionID),
		LastSyncAt: raw.LastSyncAt,
		Timestamp:  raw.Timestamp,
		Version:    raw.Version,
	}
	dropped := 0
	seen := make(map[string]struct{}, len(raw.Items))
	for _, entry := range raw.Items {
		var item cart.Item
		if err := json.Unmarshal(entry, &item); err != nil || !validItem(item) {
			dropped++
			continue
		}
		if _, dup := seen[item.Product.ID]; dup {
			dropped++
			continue
		}
		seen[item.Product.ID] = struct{}{}
		out.Items = append(out.Items, item)
	}
	return out, dropped, nil
}

func validItem(item cart.Item) bool {
	return strings.TrimSpace(item.ID) != "" &&
		strings.TrimSpace(item.Product.ID) != "" &&
		strings.TrimSpace(item.Product.Name) != "" &&
		item.Quantity > 0 &&
		item.Product.Price >= 0
}
