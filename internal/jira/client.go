package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAuth is returned when Jira rejects the configured credentials.
// Extraction aborts on it instead of burning through retries per project.
var ErrAuth = errors.New("jira: authentication rejected")

// Client provides HTTP access to a Jira Cloud instance.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a new Jira client.
func NewClient(rawURL, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(rawURL, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SearchResult is one page of a JQL search response.
type SearchResult struct {
	MaxResults int     `json:"maxResults"`
	Issues     []Issue `json:"issues"`
}

// Issue is one search hit. Fields and RenderedFields stay raw: the extractor
// persists the full payload and decodes the typed subset it needs.
type Issue struct {
	ID             string          `json:"id"`
	Key            string          `json:"key"`
	Fields         json.RawMessage `json:"fields"`
	RenderedFields json.RawMessage `json:"renderedFields"`
}

// NumericID parses the string issue id Jira returns.
func (i *Issue) NumericID() (int64, error) {
	n, err := strconv.ParseInt(i.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("issue %s: non-numeric id %q", i.Key, i.ID)
	}
	return n, nil
}

// SearchPage runs one page of the enhanced JQL search. All fields plus the
// rendered (HTML) variants are requested; keyset pagination is driven by the
// caller through the jql itself.
func (c *Client) SearchPage(ctx context.Context, jql string, maxResults int) (*SearchResult, error) {
	params := url.Values{
		"jql":          {jql},
		"maxResults":   {strconv.Itoa(maxResults)},
		"fields":       {"*all"},
		"fieldsByKeys": {"false"},
		"expand":       {"renderedFields"},
	}

	apiURL := fmt.Sprintf("%s/rest/api/3/search/jql?%s", c.URL, params.Encode())

	body, err := c.doRequest(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search page: %w", err)
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	return &result, nil
}

// doRequest executes an authenticated request with bounded retries and
// returns the response body. 429 and 5xx responses retry; other non-2xx
// statuses fail immediately.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	var respBody []byte
	op := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "jira2redmine/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w (%d): %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(b))))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("jira API returned %d: %s", resp.StatusCode, string(b))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("jira API returned %d: %s", resp.StatusCode, string(b)))
		}

		respBody = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}

// setAuth sets the authentication header: basic auth when a username is
// configured (Jira Cloud), bearer token otherwise (server/PAT).
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}
