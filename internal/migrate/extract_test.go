package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jira2redmine/internal/config"
	"jira2redmine/internal/jira"
	"jira2redmine/internal/logging"
	"jira2redmine/internal/types"
)

type fakeExtractStore struct {
	projects []types.ProjectMapping

	issues      []*types.JiraIssue
	labels      []string
	links       []types.JiraIssueLink
	attachments []types.JiraAttachment
	samples     map[string][]types.JiraObjectSample
	kvs         map[string][]types.JiraObjectKV
	marked      []int64

	upsertIssueErr error
	markErr        error
}

func (f *fakeExtractStore) MappedProjects(ctx context.Context, includeExtracted bool, keyFilter string) ([]types.ProjectMapping, error) {
	return f.projects, nil
}

func (f *fakeExtractStore) UpsertIssue(ctx context.Context, issue *types.JiraIssue) error {
	if f.upsertIssueErr != nil {
		return f.upsertIssueErr
	}
	cp := *issue
	f.issues = append(f.issues, &cp)
	return nil
}

func (f *fakeExtractStore) UpsertLabels(ctx context.Context, labels []string) error {
	f.labels = append(f.labels, labels...)
	return nil
}

func (f *fakeExtractStore) UpsertIssueLinks(ctx context.Context, links []types.JiraIssueLink) error {
	f.links = append(f.links, links...)
	return nil
}

func (f *fakeExtractStore) UpsertAttachments(ctx context.Context, rows []types.JiraAttachment) error {
	f.attachments = append(f.attachments, rows...)
	return nil
}

func (f *fakeExtractStore) ReplaceObjectSamples(ctx context.Context, fieldID, issueKey string, samples []types.JiraObjectSample, kvs []types.JiraObjectKV) error {
	if f.samples == nil {
		f.samples = map[string][]types.JiraObjectSample{}
		f.kvs = map[string][]types.JiraObjectKV{}
	}
	key := fieldID + "/" + issueKey
	f.samples[key] = samples
	f.kvs[key] = kvs
	return nil
}

func (f *fakeExtractStore) MarkExtracted(ctx context.Context, jiraProjectID int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, jiraProjectID)
	return nil
}

type searchResponse struct {
	page *jira.SearchResult
	err  error
}

type fakeSearcher struct {
	responses []searchResponse
	jqls      []string
}

func (f *fakeSearcher) SearchPage(ctx context.Context, jql string, maxResults int) (*jira.SearchResult, error) {
	f.jqls = append(f.jqls, jql)
	if len(f.responses) == 0 {
		return &jira.SearchResult{}, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.page, r.err
}

// searchIssue builds one search hit with sensible defaults merged with extra
// top-level field entries.
func searchIssue(t *testing.T, id int64, key string, extra map[string]any) jira.Issue {
	t.Helper()
	fields := map[string]any{
		"summary":   "Issue " + key,
		"project":   map[string]any{"id": "12", "key": "ALPHA"},
		"issuetype": map[string]any{"id": "3"},
		"status":    map[string]any{"id": "1", "statusCategory": map[string]any{"key": "Done"}},
		"priority":  map[string]any{"id": "2"},
		"reporter":  map[string]any{"accountId": "acc-rep"},
		"created":   "2025-11-03T10:30:00.000+0000",
		"updated":   "2025-11-04T08:00:00.000+0000",
	}
	for k, v := range extra {
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return jira.Issue{
		ID:             fmt.Sprintf("%d", id),
		Key:            key,
		Fields:         raw,
		RenderedFields: []byte(`{"description":""}`),
	}
}

func mappedProject() types.ProjectMapping {
	return types.ProjectMapping{JiraProjectID: 12, JiraProjectKey: "ALPHA", RedmineProjectID: 4}
}

func newExtractor(store *fakeExtractStore, searcher *fakeSearcher, batch int) *Extractor {
	return &Extractor{
		Store:  store,
		Jira:   searcher,
		Log:    logging.Nop(),
		Issues: config.Issues{BatchSize: batch},
	}
}

func TestExtractorKeysetPagination(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{mappedProject()}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 2, Issues: []jira.Issue{
			searchIssue(t, 10001, "ALPHA-1", nil),
			searchIssue(t, 10002, "ALPHA-2", nil),
		}}},
		{page: &jira.SearchResult{MaxResults: 2, Issues: []jira.Issue{
			searchIssue(t, 10003, "ALPHA-3", nil),
		}}},
	}}

	sum, err := newExtractor(store, searcher, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Projects)
	assert.Equal(t, 3, sum.Issues)
	require.Len(t, searcher.jqls, 2)
	assert.NotContains(t, searcher.jqls[0], "id >")
	assert.Contains(t, searcher.jqls[1], "id > 10002")
	assert.Equal(t, []int64{12}, store.marked)
	require.Len(t, store.issues, 3)
	assert.Equal(t, "ALPHA-3", store.issues[2].Key)
}

func TestExtractorStopsOnShortServerPage(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{mappedProject()}}
	// The server clamps to 1 per page; a full page at its clamp must not end
	// the sweep.
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 1, Issues: []jira.Issue{searchIssue(t, 10001, "ALPHA-1", nil)}}},
		{page: &jira.SearchResult{MaxResults: 1, Issues: nil}},
	}}

	sum, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Issues)
	assert.Len(t, searcher.jqls, 2)
}

func TestExtractorStagedFields(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{mappedProject()}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 50, Issues: []jira.Issue{
			searchIssue(t, 10001, "ALPHA-1", map[string]any{
				"summary":              "  padded  ",
				"assignee":             map[string]any{"accountId": "acc-asg"},
				"parent":               map[string]any{"id": "9000", "key": "ALPHA-0"},
				"labels":               []string{"migrate", "urgent"},
				"fixVersions":          []map[string]any{{"id": "100"}},
				"components":           []map[string]any{{"id": "200"}, {"id": "201"}},
				"duedate":              "2026-01-15",
				"timeoriginalestimate": 7200,
				"resolutiondate":       "2025-12-01T12:00:00.000+0200",
				"description": map[string]any{
					"type": "doc", "version": 1,
					"content": []map[string]any{},
				},
			}),
		}}},
	}}

	_, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.issues, 1)
	got := store.issues[0]

	assert.Equal(t, "padded", got.Summary)
	assert.Equal(t, int64(12), got.ProjectID)
	assert.Equal(t, "done", got.StatusCategory, "category key is lowercased")
	assert.Equal(t, "acc-asg", got.AssigneeAccountID)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, int64(9000), *got.ParentID)
	assert.Equal(t, `["migrate","urgent"]`, got.LabelsJSON)
	assert.Equal(t, `["100"]`, got.FixVersionsJSON)
	assert.Equal(t, `["200","201"]`, got.ComponentsJSON)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2026-01-15", got.DueDate.Format("2006-01-02"))
	require.NotNil(t, got.OriginalEstimate)
	assert.Equal(t, int64(7200), *got.OriginalEstimate)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, "2025-12-01T10:00:00Z", got.ResolvedAt.UTC().Format("2006-01-02T15:04:05Z"))
	assert.NotEmpty(t, got.DescriptionADF)
	assert.Contains(t, string(got.RawPayload), `"key":"ALPHA-1"`)

	assert.ElementsMatch(t, []string{"migrate", "urgent"}, store.labels)
}

func TestExtractorSummaryFallbacks(t *testing.T) {
	long := strings.Repeat("x", 300)
	store := &fakeExtractStore{projects: []types.ProjectMapping{mappedProject()}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 50, Issues: []jira.Issue{
			searchIssue(t, 10001, "ALPHA-1", map[string]any{"summary": "   "}),
			searchIssue(t, 10002, "ALPHA-2", map[string]any{"summary": long}),
		}}},
	}}

	_, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.issues, 2)
	assert.Equal(t, "[No summary] ALPHA-1", store.issues[0].Summary)
	assert.Len(t, store.issues[1].Summary, 255)
}

func TestExtractorAuthAbortsRun(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{
		mappedProject(),
		{JiraProjectID: 13, JiraProjectKey: "BETA", RedmineProjectID: 5},
	}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{err: fmt.Errorf("search: %w", jira.ErrAuth)},
	}}

	sum, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.ErrorIs(t, err, jira.ErrAuth)
	assert.Equal(t, 0, sum.Projects)
	assert.Len(t, searcher.jqls, 1, "the second project is never attempted")
	assert.Empty(t, store.marked)
}

func TestExtractorTransportErrorSkipsProject(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{
		mappedProject(),
		{JiraProjectID: 13, JiraProjectKey: "BETA", RedmineProjectID: 5},
	}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{err: errors.New("jira: status 503")},
		{page: &jira.SearchResult{MaxResults: 50, Issues: []jira.Issue{searchIssue(t, 20001, "BETA-1", nil)}}},
	}}

	sum, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Projects)
	assert.Equal(t, 1, sum.ProjectsFailed)
	assert.Equal(t, []int64{13}, store.marked, "the failed project stays unstamped")
}

func TestExtractorDatabaseErrorAborts(t *testing.T) {
	store := &fakeExtractStore{
		projects:       []types.ProjectMapping{mappedProject()},
		upsertIssueErr: errors.New("mysql has gone away"),
	}
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 50, Issues: []jira.Issue{searchIssue(t, 10001, "ALPHA-1", nil)}}},
	}}

	_, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql has gone away")
}

func TestExtractorSkipsProjectWithoutStagedKey(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{
		{JiraProjectID: 99},
	}}
	searcher := &fakeSearcher{}

	sum, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Projects)
	assert.Empty(t, searcher.jqls)
}

func TestExtractorLinksAndAttachments(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{mappedProject()}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 50, Issues: []jira.Issue{
			searchIssue(t, 10001, "ALPHA-1", map[string]any{
				"issuelinks": []map[string]any{
					{
						"id":           "500",
						"type":         map[string]any{"id": "10", "name": "Blocks"},
						"outwardIssue": map[string]any{"id": "10002", "key": "ALPHA-2"},
					},
					{
						"id":          "501",
						"type":        map[string]any{"id": "10", "name": "Blocks"},
						"inwardIssue": map[string]any{"id": "10003", "key": "ALPHA-3"},
					},
					{
						"id":   "502",
						"type": map[string]any{"id": "10", "name": "Blocks"},
					},
				},
				"attachment": []map[string]any{
					{"id": "42", "filename": "file.pdf", "size": 1024, "mimeType": "application/pdf",
						"content": "https://acme.atlassian.net/rest/api/3/attachment/content/42"},
					{"id": "not-a-number", "filename": "bad.bin"},
				},
			}),
		}}},
	}}

	sum, err := newExtractor(store, searcher, 50).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.links, 2, "a link with neither end is dropped")
	assert.Equal(t, types.JiraIssueLink{LinkID: 500, LinkTypeID: "10", LinkTypeName: "Blocks", SourceID: 10001, TargetID: 10002}, store.links[0])
	assert.Equal(t, types.JiraIssueLink{LinkID: 501, LinkTypeID: "10", LinkTypeName: "Blocks", SourceID: 10003, TargetID: 10001}, store.links[1],
		"an inward link is flipped so the far end is the source")

	require.Len(t, store.attachments, 1, "a non-numeric attachment id is dropped")
	assert.Equal(t, int64(42), store.attachments[0].ID)
	assert.Equal(t, int64(10001), store.attachments[0].IssueID)
	assert.Equal(t, 2, sum.Links)
	assert.Equal(t, 1, sum.Attachments)
}

func TestExtractorObjectSamples(t *testing.T) {
	store := &fakeExtractStore{projects: []types.ProjectMapping{mappedProject()}}
	searcher := &fakeSearcher{responses: []searchResponse{
		{page: &jira.SearchResult{MaxResults: 50, Issues: []jira.Issue{
			searchIssue(t, 10001, "ALPHA-1", map[string]any{
				"customfield_10600": []map[string]any{
					{"id": 7, "label": "Laptop", "attrs": []any{"a", "b"}},
				},
			}),
			searchIssue(t, 10002, "ALPHA-2", nil),
		}}},
	}}

	e := newExtractor(store, searcher, 50)
	e.Issues.ObjectSchemaFields = []string{"customfield_10600"}
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Samples)

	samples := store.samples["customfield_10600/ALPHA-1"]
	require.Len(t, samples, 1)
	assert.Equal(t, 0, samples[0].Ordinal)

	kvs := store.kvs["customfield_10600/ALPHA-1"]
	byPath := map[string]string{}
	for _, kv := range kvs {
		byPath[kv.Path] = kv.Value
	}
	assert.Equal(t, "7", byPath["id"])
	assert.Equal(t, "Laptop", byPath["label"])
	assert.Equal(t, "a", byPath["attrs[0]"])
	assert.Equal(t, "b", byPath["attrs[1]"])

	// The issue without the field still gets its old rows cleared.
	assert.Empty(t, store.samples["customfield_10600/ALPHA-2"])
	_, cleared := store.samples["customfield_10600/ALPHA-2"]
	assert.True(t, cleared)
}
