package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = 30 * time.Second

// jwtSource mints a fresh service token on every call.
type jwtSource struct {
	subject  string
	audience string
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

func (s *jwtSource) Token() (*oauth2.Token, error) {
	token, expires, err := GenerateToken(s.subject, s.audience, s.secret, s.validity, s.now())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expires}, nil
}

// NewTokenSource returns a source of HS256 service tokens. A token is reused
// until it expires within refreshMargin. The source is safe for concurrent use.
func NewTokenSource(subject, audience, secret string, validity time.Duration) oauth2.TokenSource {
	return newTokenSource(&jwtSource{
		subject:  subject,
		audience: audience,
		secret:   []byte(secret),
		validity: validity,
		now:      time.Now,
	})
}

func newTokenSource(s *jwtSource) oauth2.TokenSource {
	return oauth2.ReuseTokenSourceWithExpiry(nil, s, refreshMargin)
}

// NewHTTPClient returns the client injected into the ingest API client. It
// sends "Authorization: Bearer <token>" on every request. With a nil source
// the client sends no credentials.
func NewHTTPClient(source oauth2.TokenSource, timeout time.Duration) *http.Client {
	if source == nil {
		return &http.Client{Timeout: timeout}
	}
	c := oauth2.NewClient(context.Background(), source)
	c.Timeout = timeout
	return c
}
