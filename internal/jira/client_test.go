package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.URL, "bot@example.com", "token")
	c.HTTPClient = srv.Client()
	return c
}

func TestSearchPage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"jql":          q.Get("jql"),
			"maxResults":   q.Get("maxResults"),
			"fields":       q.Get("fields"),
			"fieldsByKeys": q.Get("fieldsByKeys"),
			"expand":       q.Get("expand"),
		}
		assert.Equal(t, "/rest/api/3/search/jql", r.URL.Path)
		json.NewEncoder(w).Encode(SearchResult{
			MaxResults: 50,
			Issues: []Issue{
				{ID: "10001", Key: "PROJ-1", Fields: json.RawMessage(`{"summary":"one"}`)},
				{ID: "10002", Key: "PROJ-2", Fields: json.RawMessage(`{"summary":"two"}`)},
			},
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv).SearchPage(context.Background(), `project = "PROJ" ORDER BY id ASC`, 50)
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, 50, res.MaxResults)
	assert.Equal(t, `project = "PROJ" ORDER BY id ASC`, gotQuery["jql"])
	assert.Equal(t, "50", gotQuery["maxResults"])
	assert.Equal(t, "*all", gotQuery["fields"])
	assert.Equal(t, "false", gotQuery["fieldsByKeys"])
	assert.Equal(t, "renderedFields", gotQuery["expand"])

	id, err := res.Issues[1].NumericID()
	require.NoError(t, err)
	assert.Equal(t, int64(10002), id)
}

func TestSearchPageAuthRejected(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SearchPage(context.Background(), "project = X", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 1, calls, "auth rejection must not retry")
}

func TestSearchPageRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(SearchResult{Issues: []Issue{}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SearchPage(context.Background(), "project = X", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSearchPageBadRequestIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SearchPage(context.Background(), "broken jql (", 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuth)
	assert.Equal(t, 1, calls)
}

func TestAuthHeaderSelection(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(SearchResult{})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.SearchPage(context.Background(), "project = X", 1)
	require.NoError(t, err)
	assert.Contains(t, auth, "Basic ")

	c.Username = ""
	_, err = c.SearchPage(context.Background(), "project = X", 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", auth)
}

func TestParseFieldsSubset(t *testing.T) {
	raw := json.RawMessage(`{
		"summary": "A summary",
		"project": {"id": "12", "key": "PROJ"},
		"issuetype": {"id": "3"},
		"status": {"id": "6", "statusCategory": {"key": "done"}},
		"labels": ["infra", "migration"],
		"attachment": [{"id": "42", "filename": "f.pdf", "size": 10, "mimeType": "application/pdf"}],
		"issuelinks": [{"id": "900", "type": {"id": "1", "name": "Blocks"}, "outwardIssue": {"id": "10005", "key": "PROJ-5"}}]
	}`)
	f, err := ParseFields(raw)
	require.NoError(t, err)
	assert.Equal(t, "A summary", f.Summary)
	require.NotNil(t, f.Project)
	pid, err := f.Project.NumericID()
	require.NoError(t, err)
	assert.Equal(t, int64(12), pid)
	assert.Equal(t, "done", f.Status.StatusCategory.Key)
	assert.Equal(t, []string{"infra", "migration"}, f.Labels)
	require.Len(t, f.Attachments, 1)
	aid, err := f.Attachments[0].NumericID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), aid)
	require.Len(t, f.IssueLinks, 1)
	require.NotNil(t, f.IssueLinks[0].OutwardIssue)
}
