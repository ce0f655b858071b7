// Package common defines sentinel errors shared by the staging manager
// components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Remote service errors.
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")
	ErrUnexpected   = errors.New("unexpected response")

	// Message errors. Handlers treat both as "nothing to do".
	ErrNotApplicable    = errors.New("message not applicable")
	ErrMalformedMessage = errors.New("malformed message")

	// Staging credentials carry no reference under the active field name.
	ErrMissingReference = errors.New("missing staging area reference")
)
