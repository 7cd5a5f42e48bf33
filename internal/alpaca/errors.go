package alpaca

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies broker failures for the submitter's recovery logic.
type ErrorKind string

const (
	// KindValidation is a 422 rejection of the order parameters.
	KindValidation ErrorKind = "validation"
	// KindInsufficientFunds is a buying-power rejection.
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	// KindTransport is any other HTTP-level failure.
	KindTransport ErrorKind = "transport"
)

// APIError is a typed broker failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Violations []string
	URL        string
}

func (e *APIError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("alpaca %s (%d): %s [%s]", e.Kind, e.StatusCode, e.Message, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("alpaca %s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// IsValidation reports whether err is a broker validation rejection.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindValidation
}

// IsInsufficientFunds reports whether err is a buying-power rejection.
func IsInsufficientFunds(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindInsufficientFunds
}
