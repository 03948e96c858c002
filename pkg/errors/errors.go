package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
	CodeInvalidQty   Code = "INVALID_QUANTITY"
	CodeNoStock      Code = "INSUFFICIENT_STOCK"
	CodeItemMissing  Code = "ITEM_NOT_FOUND"
	CodeSavedMissing Code = "SAVED_ITEM_NOT_FOUND"
	CodeBulkBusy     Code = "BULK_OPERATION_IN_PROGRESS"
	CodeCartLocked   Code = "CART_LOCKED"
)

// Codes absorbed inside the coordinator; they never reach callers.
const (
	CodeStorage             Code = "STORAGE_UNAVAILABLE"
	CodeValidationTransient Code = "VALIDATION_TRANSIENT"
	CodeSecurityCheck       Code = "SECURITY_CHECK_FAILED"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeInvalidQty: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "quantity must be a positive integer",
		DetailsAllowed: true,
	},
	CodeNoStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "insufficient stock",
		DetailsAllowed: true,
	},
	CodeItemMissing: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "item not found in cart",
	},
	CodeSavedMissing: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "saved item not found",
	},
	CodeBulkBusy: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "bulk operation already in progress",
	},
	CodeCartLocked: {
		HTTPStatus:     http.StatusLocked,
		PublicMessage:  "cart is locked for checkout",
		DetailsAllowed: true,
	},
	CodeStorage: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "storage unavailable",
	},
	CodeValidationTransient: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "product validation unavailable",
	},
	CodeSecurityCheck: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "internal server error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether the first typed error in the chain carries code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
