// Package ingest is the client for the submission-tracking (ingest) API.
//
// The API is HAL/JSON. The client resolves submission envelopes by document
// id or uuid, records staging details on an envelope and fires state
// transition events. Non-2xx responses are mapped to the sentinel errors in
// internal/common (ErrNotFound, ErrUnauthorized, ErrUnavailable,
// ErrUnexpected), so callers can match them with errors.Is.
//
// Authentication is the job of the injected *http.Client; see internal/auth.
package ingest
