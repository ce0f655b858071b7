package common

import (
	"fmt"
	"net/http"
)

// StatusError maps an HTTP status code to one of the sentinel errors and wraps
// it with the request description, e.g. "GET /v1/area/u1: 404 Not Found: not found".
// It returns nil for 2xx codes.
func StatusError(op string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}

	var base error
	switch {
	case code == http.StatusNotFound:
		base = ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		base = ErrUnauthorized
	case code >= 500:
		base = ErrUnavailable
	default:
		base = ErrUnexpected
	}

	return fmt.Errorf("%s: %d %s: %w", op, code, http.StatusText(code), base)
}
