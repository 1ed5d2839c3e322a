// Package migrate implements the three issue pipeline phases: extract (Jira
// to staging), transform (staging to Redmine proposals), and push (proposals
// to Redmine). Each phase is rerunnable at any time; the mapping tables carry
// all durable state.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"jira2redmine/internal/config"
	"jira2redmine/internal/jira"
	"jira2redmine/internal/logging"
	"jira2redmine/internal/telemetry"
	"jira2redmine/internal/text"
	"jira2redmine/internal/types"
)

// ExtractStore is the staging surface the extractor writes to.
type ExtractStore interface {
	MappedProjects(ctx context.Context, includeExtracted bool, keyFilter string) ([]types.ProjectMapping, error)
	UpsertIssue(ctx context.Context, issue *types.JiraIssue) error
	UpsertLabels(ctx context.Context, labels []string) error
	UpsertIssueLinks(ctx context.Context, links []types.JiraIssueLink) error
	UpsertAttachments(ctx context.Context, rows []types.JiraAttachment) error
	ReplaceObjectSamples(ctx context.Context, fieldID, issueKey string, samples []types.JiraObjectSample, kvs []types.JiraObjectKV) error
	MarkExtracted(ctx context.Context, jiraProjectID int64) error
}

// Searcher is the Jira search surface.
type Searcher interface {
	SearchPage(ctx context.Context, jql string, maxResults int) (*jira.SearchResult, error)
}

// Extractor pulls issues for every unextracted mapped project into staging.
type Extractor struct {
	Store   ExtractStore
	Jira    Searcher
	Log     *logging.Logger
	Metrics *telemetry.PhaseMetrics
	Issues  config.Issues

	// ProjectKey restricts the run to one project; ReExtract also revisits
	// projects already stamped with issues_extracted_at.
	ProjectKey string
	ReExtract  bool
}

// ExtractSummary counts one extraction run.
type ExtractSummary struct {
	Projects       int
	ProjectsFailed int
	Issues         int
	Labels         int
	Links          int
	Attachments    int
	Samples        int
}

// Buckets renders the summary for logging.
func (s *ExtractSummary) Buckets() []logging.Bucket {
	return []logging.Bucket{
		{Name: "projects", Count: s.Projects},
		{Name: "projects_failed", Count: s.ProjectsFailed},
		{Name: "issues", Count: s.Issues},
		{Name: "labels", Count: s.Labels},
		{Name: "links", Count: s.Links},
		{Name: "attachments", Count: s.Attachments},
		{Name: "samples", Count: s.Samples},
	}
}

// Run extracts every eligible project. A Jira transport failure skips the
// current project (unstamped, so a rerun resumes it); an auth rejection or a
// database failure aborts the phase.
func (e *Extractor) Run(ctx context.Context) (*ExtractSummary, error) {
	projects, err := e.Store.MappedProjects(ctx, e.ReExtract, e.ProjectKey)
	if err != nil {
		return nil, err
	}

	sum := &ExtractSummary{}
	for i := range projects {
		p := &projects[i]
		if p.JiraProjectKey == "" {
			e.Log.Warn("project %d has no staged key; run the project extraction first", p.JiraProjectID)
			continue
		}
		if err := e.extractProject(ctx, p, sum); err != nil {
			if errors.Is(err, jira.ErrAuth) || isFatal(err) {
				return sum, err
			}
			e.Log.Error("project %s: %v", p.JiraProjectKey, err)
			if e.Metrics != nil {
				e.Metrics.ItemError(ctx, "extract")
			}
			sum.ProjectsFailed++
			continue
		}
		sum.Projects++
	}
	return sum, nil
}

// fatalError marks database failures, which abort the phase rather than
// skipping a project.
type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

func isFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

func (e *Extractor) extractProject(ctx context.Context, p *types.ProjectMapping, sum *ExtractSummary) error {
	batch := e.Issues.EffectiveBatchSize()
	lastSeen := int64(0)
	total := 0

	for {
		jql := jira.ProjectJQL(p.JiraProjectKey, e.Issues.JQL, lastSeen)
		page, err := e.Jira.SearchPage(ctx, jql, batch)
		if err != nil {
			return err
		}

		for i := range page.Issues {
			iss := &page.Issues[i]
			id, err := e.stageOne(ctx, iss, sum)
			if err != nil {
				return err
			}
			if id > lastSeen {
				lastSeen = id
			}
			total++
		}

		// The server may lower the page size; trust its echo when present.
		effective := batch
		if page.MaxResults > 0 && page.MaxResults < effective {
			effective = page.MaxResults
		}
		if len(page.Issues) < effective {
			break
		}
	}

	if err := e.Store.MarkExtracted(ctx, p.JiraProjectID); err != nil {
		return &fatalError{err}
	}
	if e.Metrics != nil {
		e.Metrics.Extracted(ctx, int64(total), p.JiraProjectKey)
	}
	e.Log.Tag("extract", "%s: %d issue(s) staged", p.JiraProjectKey, total)
	return nil
}

// stageOne normalizes and upserts a single search hit plus its labels, links,
// attachments, and object-schema samples. Returns the numeric issue id for
// keyset progress.
func (e *Extractor) stageOne(ctx context.Context, iss *jira.Issue, sum *ExtractSummary) (int64, error) {
	id, err := iss.NumericID()
	if err != nil {
		return 0, err
	}
	fields, err := jira.ParseFields(iss.Fields)
	if err != nil {
		return 0, fmt.Errorf("issue %s: %w", iss.Key, err)
	}
	rendered := jira.ParseRenderedFields(iss.RenderedFields)

	staged, err := stageIssue(id, iss, fields, rendered)
	if err != nil {
		return 0, err
	}
	if err := e.Store.UpsertIssue(ctx, staged); err != nil {
		return 0, &fatalError{err}
	}
	sum.Issues++

	if len(fields.Labels) > 0 {
		if err := e.Store.UpsertLabels(ctx, fields.Labels); err != nil {
			return 0, &fatalError{err}
		}
		sum.Labels += len(fields.Labels)
	}

	links := canonicalLinks(id, fields.IssueLinks, e.Log)
	if len(links) > 0 {
		if err := e.Store.UpsertIssueLinks(ctx, links); err != nil {
			return 0, &fatalError{err}
		}
		sum.Links += len(links)
	}

	atts := stagedAttachments(id, fields.Attachments, e.Log)
	if len(atts) > 0 {
		if err := e.Store.UpsertAttachments(ctx, atts); err != nil {
			return 0, &fatalError{err}
		}
		sum.Attachments += len(atts)
	}

	if len(e.Issues.ObjectSchemaFields) > 0 {
		n, err := e.refreshObjectSamples(ctx, iss.Key, iss.Fields)
		if err != nil {
			return 0, err
		}
		sum.Samples += n
	}
	return id, nil
}

func stageIssue(id int64, iss *jira.Issue, f *jira.IssueFields, rendered jira.RenderedFields) (*types.JiraIssue, error) {
	summary := text.TruncateGraphemes(strings.TrimSpace(f.Summary), 255)
	if summary == "" {
		summary = "[No summary] " + iss.Key
	}

	staged := &types.JiraIssue{
		ID:      id,
		Key:     iss.Key,
		Summary: summary,
	}

	if f.Project != nil {
		pid, err := f.Project.NumericID()
		if err != nil {
			return nil, fmt.Errorf("issue %s: %w", iss.Key, err)
		}
		staged.ProjectID = pid
		staged.ProjectKey = f.Project.Key
	}
	if f.IssueType != nil {
		staged.IssueTypeID = f.IssueType.ID
	}
	if f.Status != nil {
		staged.StatusID = f.Status.ID
		staged.StatusCategory = strings.ToLower(f.Status.StatusCategory.Key)
	}
	if f.Priority != nil {
		staged.PriorityID = f.Priority.ID
	}
	if f.Reporter != nil {
		staged.ReporterAccountID = f.Reporter.AccountID
	}
	if f.Assignee != nil {
		staged.AssigneeAccountID = f.Assignee.AccountID
	}
	if f.Parent != nil {
		if pid, err := f.Parent.NumericID(); err == nil {
			staged.ParentID = &pid
		}
	}

	if !jira.NewValue(f.Description).IsNull() {
		staged.DescriptionADF = f.Description
	}
	staged.DescriptionHTML = strings.TrimSpace(rendered.Description)

	staged.LabelsJSON = marshalStrings(f.Labels)
	staged.FixVersionsJSON = marshalStrings(entityIDs(f.FixVersions))
	staged.ComponentsJSON = marshalStrings(entityIDs(f.Components))

	// Unparseable timestamps stage as NULL; the raw payload keeps the
	// original value for a later fix-up.
	staged.CreatedAt, _ = jira.ParseTimestampUTC(f.Created)
	staged.UpdatedAt, _ = jira.ParseTimestampUTC(f.Updated)
	staged.ResolvedAt, _ = jira.ParseTimestampUTC(f.ResolutionDate)
	staged.DueDate, _ = jira.ParseDate(f.DueDate)

	staged.OriginalEstimate = jira.ParseSeconds(f.OriginalEstimate)
	staged.RemainingEstimate = jira.ParseSeconds(f.RemainingEstimate)
	staged.TimeSpent = jira.ParseSeconds(f.TimeSpent)

	raw, err := json.Marshal(struct {
		ID             string          `json:"id"`
		Key            string          `json:"key"`
		Fields         json.RawMessage `json:"fields"`
		RenderedFields json.RawMessage `json:"renderedFields,omitempty"`
	}{iss.ID, iss.Key, iss.Fields, iss.RenderedFields})
	if err != nil {
		return nil, fmt.Errorf("issue %s: encode raw payload: %w", iss.Key, err)
	}
	staged.RawPayload = raw
	return staged, nil
}

func entityIDs(entities []jira.EntityField) []string {
	var out []string
	for _, e := range entities {
		if e.ID != "" {
			out = append(out, e.ID)
		}
	}
	return out
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	b, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(b)
}

// canonicalLinks collapses Jira's two-sided link reporting onto one outward
// (source -> target) row per link id.
func canonicalLinks(issueID int64, links []jira.IssueLinkField, log *logging.Logger) []types.JiraIssueLink {
	var out []types.JiraIssueLink
	for i := range links {
		l := &links[i]
		linkID, err := strconv.ParseInt(l.ID, 10, 64)
		if err != nil {
			log.Warn("issue %d: non-numeric link id %q", issueID, l.ID)
			continue
		}
		row := types.JiraIssueLink{
			LinkID:       linkID,
			LinkTypeID:   l.Type.ID,
			LinkTypeName: l.Type.Name,
		}
		switch {
		case l.OutwardIssue != nil:
			target, err := l.OutwardIssue.NumericID()
			if err != nil {
				log.Warn("issue %d: %v", issueID, err)
				continue
			}
			row.SourceID, row.TargetID = issueID, target
		case l.InwardIssue != nil:
			source, err := l.InwardIssue.NumericID()
			if err != nil {
				log.Warn("issue %d: %v", issueID, err)
				continue
			}
			row.SourceID, row.TargetID = source, issueID
		default:
			continue
		}
		out = append(out, row)
	}
	return out
}

func stagedAttachments(issueID int64, atts []jira.AttachmentField, log *logging.Logger) []types.JiraAttachment {
	var out []types.JiraAttachment
	for i := range atts {
		a := &atts[i]
		id, err := a.NumericID()
		if err != nil {
			log.Warn("issue %d: %v", issueID, err)
			continue
		}
		row := types.JiraAttachment{
			ID:         id,
			IssueID:    issueID,
			Filename:   a.Filename,
			SizeBytes:  a.Size,
			MimeType:   a.MimeType,
			ContentURL: a.Content,
		}
		row.CreatedAt, _ = jira.ParseTimestampUTC(a.Created)
		out = append(out, row)
	}
	return out
}

// refreshObjectSamples replaces the object-schema rows of the configured
// fields for one issue. A missing or empty field value clears the old rows.
func (e *Extractor) refreshObjectSamples(ctx context.Context, issueKey string, rawFields json.RawMessage) (int, error) {
	var fieldsMap map[string]json.RawMessage
	if err := json.Unmarshal(rawFields, &fieldsMap); err != nil {
		return 0, fmt.Errorf("issue %s: decode fields for sampling: %w", issueKey, err)
	}

	total := 0
	for _, fieldID := range e.Issues.ObjectSchemaFields {
		v := jira.NewValue(fieldsMap[fieldID])

		var (
			samples []types.JiraObjectSample
			kvs     []types.JiraObjectKV
		)
		if !v.IsNull() {
			elems, ok := v.AsArray()
			if !ok {
				elems = []jira.Value{v}
			}
			for ordinal, elem := range elems {
				samples = append(samples, types.JiraObjectSample{
					FieldID:  fieldID,
					IssueKey: issueKey,
					Ordinal:  ordinal,
					Raw:      elem.Raw(),
				})
				kvs = append(kvs, flattenValue(fieldID, issueKey, ordinal, "", elem)...)
			}
		}
		if err := e.Store.ReplaceObjectSamples(ctx, fieldID, issueKey, samples, kvs); err != nil {
			return total, &fatalError{err}
		}
		total += len(samples)
	}
	return total, nil
}

// flattenValue walks one sampled element depth-first, emitting a KV row per
// scalar leaf. Paths are dotted; nested arrays append [i] to the segment.
func flattenValue(fieldID, issueKey string, ordinal int, path string, v jira.Value) []types.JiraObjectKV {
	switch v.Kind() {
	case jira.KindNull:
		return nil
	case jira.KindObject:
		members, _ := v.Members()
		var out []types.JiraObjectKV
		for _, m := range members {
			childPath := m.Key
			if path != "" {
				childPath = path + "." + m.Key
			}
			out = append(out, flattenValue(fieldID, issueKey, ordinal, childPath, m.Value)...)
		}
		return out
	case jira.KindArray:
		elems, _ := v.AsArray()
		var out []types.JiraObjectKV
		for i, elem := range elems {
			out = append(out, flattenValue(fieldID, issueKey, ordinal, fmt.Sprintf("%s[%d]", path, i), elem)...)
		}
		return out
	default:
		return []types.JiraObjectKV{{
			FieldID:  fieldID,
			IssueKey: issueKey,
			Path:     path,
			Ordinal:  ordinal,
			Value:    scalarString(v),
		}}
	}
}

func scalarString(v jira.Value) string {
	switch v.Kind() {
	case jira.KindString:
		s, _ := v.AsString()
		return s
	case jira.KindNumber:
		f, _ := v.AsNumber()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case jira.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	}
	return string(v.Raw())
}
