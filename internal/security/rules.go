package security

import (
	"regexp"
	"strings"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

const (
	maxProductIDLength   = 50
	maxProductNameLength = 200
	largeQuantity        = 10
	unusualQuantity      = 50
	minPlausiblePrice    = 0.01
)

var (
	sessionIDPattern  = regexp.MustCompile(`^cart_\d+_[a-z0-9]+$`)
	productIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
	suspiciousContent = regexp.MustCompile(`(?i)<script|javascript:|data:`)
	automatedAgent    = regexp.MustCompile(`(?i)bot|crawler|spider|scraper`)
)

func IsValidSessionID(sessionID string) bool {
	return sessionIDPattern.MatchString(sessionID)
}

func IsValidProductID(productID string) bool {
	return productID != "" && len(productID) <= maxProductIDLength && productIDPattern.MatchString(productID)
}

// Verdict is the advisory outcome of a guard. Errors make the verdict
// disallowed; warnings only raise the risk.
type Verdict struct {
	Allowed  bool            `json:"allowed"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Risk     enums.RiskLevel `json:"risk"`
}

func newVerdict() Verdict {
	return Verdict{Allowed: true, Risk: enums.RiskLevelLow}
}

func (v *Verdict) fail(msg string, risk enums.RiskLevel) {
	v.Allowed = false
	v.Errors = append(v.Errors, msg)
	v.Risk = v.Risk.Max(risk)
}

func (v *Verdict) warn(msg string, risk enums.RiskLevel) {
	v.Warnings = append(v.Warnings, msg)
	v.Risk = v.Risk.Max(risk)
}

func (v *Verdict) merge(other Verdict) {
	if !other.Allowed {
		v.Allowed = false
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
	v.Risk = v.Risk.Max(other.Risk)
}

func (g *Guard) checkContext(rc RequestContext) Verdict {
	v := newVerdict()
	if !IsValidSessionID(rc.SessionID) {
		v.fail("invalid session id format", enums.RiskLevelHigh)
	}
	if rc.UserAgent != "" && automatedAgent.MatchString(rc.UserAgent) {
		v.warn("suspicious user agent detected", enums.RiskLevelMedium)
	}
	if !rc.Timestamp.IsZero() {
		if age := g.now().Sub(rc.Timestamp); age > maxRequestAge || age < -maxRequestAge {
			v.warn("request timestamp is too old", enums.RiskLevelMedium)
		}
	}
	return v
}

func (g *Guard) checkQuantity(v *Verdict, quantity int, allowZero bool) {
	lowest := 1
	if allowZero {
		lowest = 0
	}
	if quantity < lowest || quantity > g.opts.MaxQuantity {
		v.fail("invalid quantity", enums.RiskLevelMedium)
	}
	if quantity > unusualQuantity {
		v.warn("unusually high quantity requested", enums.RiskLevelMedium)
	} else if quantity > largeQuantity {
		v.warn("large quantity requested", enums.RiskLevelMedium)
	}
}

// ValidateProduct checks a client-supplied product snapshot for tampering.
func (g *Guard) ValidateProduct(p cart.Product) Verdict {
	v := newVerdict()
	if !IsValidProductID(p.ID) {
		v.fail("invalid product id", enums.RiskLevelHigh)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > maxProductNameLength {
		v.fail("invalid product name", enums.RiskLevelMedium)
	}
	if p.Price < 0 || p.Price > g.opts.MaxProductPrice {
		v.fail("invalid product price", enums.RiskLevelHigh)
	} else if p.Price < minPlausiblePrice {
		v.fail("suspicious product price", enums.RiskLevelHigh)
	}
	if p.Stock < 0 {
		v.fail("invalid product stock", enums.RiskLevelMedium)
	}
	if suspiciousContent.MatchString(p.Name) {
		v.fail("suspicious content in product name", enums.RiskLevelHigh)
	}
	return v
}
