package enums

import "fmt"

// ValidationPriority orders queued background validations.
type ValidationPriority string

const (
	ValidationPriorityHigh   ValidationPriority = "high"
	ValidationPriorityMedium ValidationPriority = "medium"
	ValidationPriorityLow    ValidationPriority = "low"
)

var validValidationPrioritys = []ValidationPriority{
	ValidationPriorityHigh,
	ValidationPriorityMedium,
	ValidationPriorityLow,
}

// String implements fmt.Stringer.
func (p ValidationPriority) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ValidationPriority.
func (p ValidationPriority) IsValid() bool {
	for _, candidate := range validValidationPrioritys {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseValidationPriority converts raw input into a ValidationPriority.
func ParseValidationPriority(value string) (ValidationPriority, error) {
	for _, candidate := range validValidationPrioritys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid validation priority %q", value)
}
