package enums

import "fmt"

// CartEventType is the analytics event kind emitted by the cart.
type CartEventType string

const (
	CartEventAddToCart      CartEventType = "add_to_cart"
	CartEventRemoveFromCart CartEventType = "remove_from_cart"
	CartEventUpdateQuantity CartEventType = "update_quantity"
	CartEventViewCart       CartEventType = "view_cart"
	CartEventCheckoutStart  CartEventType = "checkout_start"
	CartEventAbandonCart    CartEventType = "abandon_cart"
)

var validCartEventTypes = []CartEventType{
	CartEventAddToCart,
	CartEventRemoveFromCart,
	CartEventUpdateQuantity,
	CartEventViewCart,
	CartEventCheckoutStart,
	CartEventAbandonCart,
}

// String implements fmt.Stringer.
func (e CartEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known CartEventType.
func (e CartEventType) IsValid() bool {
	for _, candidate := range validCartEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseCartEventType converts raw input into a CartEventType.
func ParseCartEventType(value string) (CartEventType, error) {
	for _, candidate := range validCartEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart event type %q", value)
}
