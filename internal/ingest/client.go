package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/stagingmanager/internal/common"
	"github.com/dmitrijs2005/stagingmanager/internal/models"
)

// Client talks to the ingest API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
	}
}

// SubmissionURL returns the canonical URL of the submission envelope with
// the given document id.
func (c *Client) SubmissionURL(ctx context.Context, documentID string) (string, error) {
	u := c.envelopeURL(documentID)

	var s models.Submission
	if err := c.do(ctx, http.MethodGet, u, nil, &s); err != nil {
		return "", err
	}
	if self := s.SelfURL(); self != "" {
		return self, nil
	}
	return u, nil
}

// ObjectUUID fetches the object at url and returns its uuid.
func (c *Client) ObjectUUID(ctx context.Context, objectURL string) (string, error) {
	var s models.Submission
	if err := c.do(ctx, http.MethodGet, objectURL, nil, &s); err != nil {
		return "", err
	}
	if s.UUID.UUID == "" {
		return "", fmt.Errorf("GET %s: no uuid in response: %w", objectURL, common.ErrUnexpected)
	}
	return s.UUID.UUID, nil
}

// SubmissionByUUID looks a submission envelope up by uuid. A missing
// envelope yields an error matching common.ErrNotFound.
func (c *Client) SubmissionByUUID(ctx context.Context, submissionUUID string) (*models.Submission, error) {
	u := c.baseURL + "/submissionEnvelopes/search/findByUuid?uuid=" + url.QueryEscape(submissionUUID)

	s := &models.Submission{}
	if err := c.do(ctx, http.MethodGet, u, nil, s); err != nil {
		return nil, err
	}
	return s, nil
}

type stagingDetailsPatch struct {
	StagingDetails models.StagingDetails `json:"stagingDetails"`
}

// UpdateStagingDetails records the staging area of the submission at submissionURL.
func (c *Client) UpdateStagingDetails(ctx context.Context, submissionURL, submissionUUID, reference string) error {
	patch := stagingDetailsPatch{
		StagingDetails: models.StagingDetails{
			StagingAreaUUID:     models.UUID{UUID: submissionUUID},
			StagingAreaLocation: models.StagingValue{Value: reference},
		},
	}
	return c.do(ctx, http.MethodPatch, submissionURL, patch, nil)
}

// UpdateSubmissionState fires the state transition event for the submission
// with the given document id.
func (c *Client) UpdateSubmissionState(ctx context.Context, documentID string, state models.SubmissionState) error {
	u := c.envelopeURL(documentID) + "/" + string(state) + "Event"
	return c.do(ctx, http.MethodPut, u, nil, nil)
}

func (c *Client) envelopeURL(documentID string) string {
	return c.baseURL + "/submissionEnvelopes/" + url.PathEscape(documentID)
}

func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/hal+json, application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, u, common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := common.StatusError(method+" "+u, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, u, err)
	}
	return nil
}
