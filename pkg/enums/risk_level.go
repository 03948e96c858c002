package enums

import "fmt"

// RiskLevel is the advisory risk score kept by the security guard.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

var riskWeights = map[RiskLevel]int{
	RiskLevelLow:    1,
	RiskLevelMedium: 2,
	RiskLevelHigh:   3,
}

// String implements fmt.Stringer.
func (r RiskLevel) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiskLevel.
func (r RiskLevel) IsValid() bool {
	_, ok := riskWeights[r]
	return ok
}

// Weight orders risk levels; unknown values weigh zero.
func (r RiskLevel) Weight() int {
	return riskWeights[r]
}

// Max returns the higher of the two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Weight() > r.Weight() {
		return other
	}
	return r
}

// ParseRiskLevel converts raw input into a RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, error) {
	level := RiskLevel(value)
	if !level.IsValid() {
		return "", fmt.Errorf("invalid risk level %q", value)
	}
	return level, nil
}
