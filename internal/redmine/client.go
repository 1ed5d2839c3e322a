// Package redmine is a minimal client for the Redmine REST API, covering
// exactly what the push phase needs: issue creation and the extended-API
// health probe. Issue creation is deliberately not retried; a timed-out POST
// may still have created the issue on the server, and a retry would create it
// twice.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound marks a 404 from Redmine.
var ErrNotFound = errors.New("redmine: not found")

// ExtendedAPIHeader is sent on every request in extended mode and must be
// echoed by the server for the probe to pass.
const ExtendedAPIHeader = "X-Redmine-Extended-API"

// APIError is a non-2xx response. Body carries the raw response body; callers
// truncate it before persisting into notes.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("redmine: status %d: %s", e.StatusCode, body)
}

// Client talks to one Redmine instance.
type Client struct {
	URL        string
	APIKey     string
	Prefix     string // extended-API path prefix, e.g. "extended/"
	Extended   bool
	HTTPClient *http.Client
}

// NewClient builds a client. prefix applies only in extended mode.
func NewClient(rawURL, apiKey, prefix string, extended bool) *Client {
	return &Client{
		URL:      strings.TrimRight(rawURL, "/"),
		APIKey:   apiKey,
		Prefix:   prefix,
		Extended: extended,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// IssuesPath is the relative create endpoint, prefixed in extended mode.
func (c *Client) IssuesPath() string {
	if c.Extended && c.Prefix != "" {
		return strings.TrimRight(c.Prefix, "/") + "/issues.json"
	}
	return "issues.json"
}

// CreateIssue POSTs one issue and returns the new Redmine issue id. The
// notify=false query suppresses Redmine mail for the bulk import. The call is
// made at most once; any failure surfaces to the caller unretried.
func (c *Client) CreateIssue(ctx context.Context, req *CreateRequest) (int64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("encoding issue payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s?notify=false", c.URL, c.IssuesPath())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("reading create response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var created struct {
		Issue struct {
			ID int64 `json:"id"`
		} `json:"issue"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return 0, fmt.Errorf("decoding create response: %w", err)
	}
	if created.Issue.ID == 0 {
		return 0, fmt.Errorf("create succeeded but response carries no issue id")
	}
	return created.Issue.ID, nil
}

// Probe GETs the create endpoint and reports whether the server acknowledged
// the extended API by echoing the marker header.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/%s?limit=1", c.URL, c.IssuesPath())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusNotFound {
		return false, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &APIError{StatusCode: resp.StatusCode, Body: ""}
	}
	return resp.Header.Get(ExtendedAPIHeader) != "", nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Redmine-API-Key", c.APIKey)
	if c.Extended {
		req.Header.Set(ExtendedAPIHeader, "true")
	}
}
