package enums

import "fmt"

// StorageBackend names the persistence backend currently holding the cart.
type StorageBackend string

const (
	StorageBackendPrimary  StorageBackend = "primary"
	StorageBackendFallback StorageBackend = "fallback"
	StorageBackendNone     StorageBackend = "none"
)

var validStorageBackends = []StorageBackend{
	StorageBackendPrimary,
	StorageBackendFallback,
	StorageBackendNone,
}

// String implements fmt.Stringer.
func (b StorageBackend) String() string {
	return string(b)
}

// IsValid reports whether the value is a known StorageBackend.
func (b StorageBackend) IsValid() bool {
	for _, candidate := range validStorageBackends {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseStorageBackend converts raw input into a StorageBackend.
func ParseStorageBackend(value string) (StorageBackend, error) {
	for _, candidate := range validStorageBackends {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid storage backend %q", value)
}
