package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/stagingmanager/internal/common"
	"github.com/dmitrijs2005/stagingmanager/internal/models"
)

const apiKeyHeader = "Api-Key"

// UploadClient talks to the upload service REST API.
type UploadClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewUploadClient builds a client for the API at baseURL. When timeout is set
// and httpClient has none, a copy of httpClient with that timeout is used.
func NewUploadClient(baseURL, apiKey string, httpClient *http.Client, timeout time.Duration) *UploadClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout > 0 && httpClient.Timeout == 0 {
		cc := *httpClient
		cc.Timeout = timeout
		httpClient = &cc
	}
	return &UploadClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

func (c *UploadClient) areaURL(areaUUID string) string {
	return c.baseURL + "/v1/area/" + url.PathEscape(areaUUID)
}

func (c *UploadClient) HasStagingArea(ctx context.Context, areaUUID string) (bool, error) {
	_, err := c.getCredentials(ctx, areaUUID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// CreateStagingArea creates the area and returns its credentials. When the
// area already exists the existing credentials are returned.
func (c *UploadClient) CreateStagingArea(ctx context.Context, areaUUID string) (models.StagingCredentials, error) {
	resp, err := c.send(ctx, http.MethodPost, areaUUID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.getCredentials(ctx, areaUUID)
	}
	if err := common.StatusError("POST "+c.areaURL(areaUUID), resp.StatusCode); err != nil {
		return nil, err
	}
	return decodeCredentials(resp.Body)
}

// DeleteStagingArea removes the area. A missing area is not an error.
func (c *UploadClient) DeleteStagingArea(ctx context.Context, areaUUID string) error {
	resp, err := c.send(ctx, http.MethodDelete, areaUUID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return common.StatusError("DELETE "+c.areaURL(areaUUID), resp.StatusCode)
}

func (c *UploadClient) getCredentials(ctx context.Context, areaUUID string) (models.StagingCredentials, error) {
	resp, err := c.send(ctx, http.MethodGet, areaUUID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := common.StatusError("GET "+c.areaURL(areaUUID), resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, err
	}
	return decodeCredentials(resp.Body)
}

func (c *UploadClient) send(ctx context.Context, method, areaUUID string) (*http.Response, error) {
	u := c.areaURL(areaUUID)

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, u, common.ErrUnavailable, err)
	}
	return resp, nil
}

func decodeCredentials(r io.Reader) (models.StagingCredentials, error) {
	creds := models.StagingCredentials{}
	if err := json.NewDecoder(r).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode staging credentials: %w", err)
	}
	return creds, nil
}
