package redmine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateIssue(t *testing.T) {
	var gotPath, gotQuery, gotKey, gotContentType string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-Redmine-API-Key")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"issue":{"id":4711,"subject":"Test"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", "", false)
	req := &CreateRequest{Issue: Issue{
		ProjectID:   1,
		TrackerID:   2,
		StatusID:    3,
		Subject:     "Test",
		Description: "body",
	}}

	id, err := client.CreateIssue(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if id != 4711 {
		t.Errorf("id = %d, want 4711", id)
	}
	if gotPath != "/issues.json" {
		t.Errorf("path = %q, want /issues.json", gotPath)
	}
	if gotQuery != "notify=false" {
		t.Errorf("query = %q, want notify=false", gotQuery)
	}
	if gotKey != "secret-key" {
		t.Errorf("X-Redmine-API-Key = %q, want secret-key", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	issue, ok := gotBody["issue"].(map[string]any)
	if !ok {
		t.Fatalf("request body missing issue object: %v", gotBody)
	}
	if issue["subject"] != "Test" {
		t.Errorf("subject = %v, want Test", issue["subject"])
	}
	if _, present := issue["priority_id"]; present {
		t.Error("unset priority_id should be omitted from the payload")
	}
	if _, present := issue["is_private"]; present {
		t.Error("is_private false should be omitted from the payload")
	}
}

func TestCreateIssueNeverRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errors":["boom"]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "", false)
	_, err := client.CreateIssue(context.Background(), &CreateRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1", attempts)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "boom") {
		t.Errorf("Body = %q, want the response body", apiErr.Body)
	}
}

func TestCreateIssueMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "", false)
	_, err := client.CreateIssue(context.Background(), &CreateRequest{})
	if err == nil {
		t.Fatal("expected error for 2xx response without issue id")
	}
	if !strings.Contains(err.Error(), "no issue id") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateIssueNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "", false)
	_, err := client.CreateIssue(context.Background(), &CreateRequest{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIssuesPathPrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		extended bool
		want     string
	}{
		{"default api", "", false, "issues.json"},
		{"prefix ignored without extended", "ext/", false, "issues.json"},
		{"extended with prefix", "ext/", true, "ext/issues.json"},
		{"extended trailing slash trimmed", "extended_api/", true, "extended_api/issues.json"},
		{"extended without prefix", "", true, "issues.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("https://redmine.example.com", "k", tt.prefix, tt.extended)
			if got := c.IssuesPath(); got != tt.want {
				t.Errorf("IssuesPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	t.Run("header present", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("method = %s, want GET", r.Method)
			}
			if r.Header.Get(ExtendedAPIHeader) != "true" {
				t.Errorf("probe request missing %s header", ExtendedAPIHeader)
			}
			w.Header().Set(ExtendedAPIHeader, "1.0")
			w.Write([]byte(`{"issues":[]}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "key", "ext/", true)
		ok, err := client.Probe(context.Background())
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		if !ok {
			t.Error("expected probe to pass")
		}
	})

	t.Run("header missing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"issues":[]}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "key", "", true)
		ok, err := client.Probe(context.Background())
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		if ok {
			t.Error("expected probe to fail without the marker header")
		}
	})
}

func TestPrettyPayload(t *testing.T) {
	req := &CreateRequest{Issue: Issue{
		ProjectID:   1,
		TrackerID:   2,
		StatusID:    3,
		Subject:     "Links",
		Description: "see https://example.com/a?b=1&c=2",
	}}
	out := req.Pretty()
	if !strings.Contains(out, "\"subject\": \"Links\"") {
		t.Errorf("expected indented output, got %q", out)
	}
	if strings.Contains(out, `\u0026`) {
		t.Errorf("ampersand should not be escaped: %q", out)
	}
}
