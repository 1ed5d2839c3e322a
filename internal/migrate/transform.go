package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"jira2redmine/internal/adf"
	"jira2redmine/internal/attachments"
	"jira2redmine/internal/autohash"
	"jira2redmine/internal/config"
	"jira2redmine/internal/customfields"
	"jira2redmine/internal/htmlmd"
	"jira2redmine/internal/jira"
	"jira2redmine/internal/logging"
	"jira2redmine/internal/storage"
	"jira2redmine/internal/telemetry"
	"jira2redmine/internal/text"
	"jira2redmine/internal/types"
)

// TransformStore is the mapping surface the transformer reads and writes.
type TransformStore interface {
	EnsureMappingRows(ctx context.Context) (int64, error)
	LoadLookups(ctx context.Context) (*storage.Lookups, error)
	LoadCustomFieldMappings(ctx context.Context) ([]types.CustomFieldMapping, error)
	ResolvedParents(ctx context.Context) (map[int64]int64, error)
	AttachmentMappingsByIssue(ctx context.Context) (map[int64][]types.AttachmentMapping, error)
	IssueJoins(ctx context.Context, statuses ...types.MigrationStatus) ([]storage.IssueJoin, error)
	UpdateProposal(ctx context.Context, m *types.IssueMapping) error
}

// Transformer turns staged issues into Redmine proposals on the mapping rows.
type Transformer struct {
	Store   TransformStore
	Log     *logging.Logger
	Metrics *telemetry.PhaseMetrics
	Issues  config.Issues

	// JiraBaseURL is the host attachment links point at.
	JiraBaseURL string
}

// TransformSummary counts one transformation run.
type TransformSummary struct {
	NewRows      int64
	Ready        int
	MatchFound   int
	ManualReview int
	Preserved    int
	Skipped      int
	Unchanged    int
	Errors       int
}

// Buckets renders the summary for logging.
func (s *TransformSummary) Buckets() []logging.Bucket {
	return []logging.Bucket{
		{Name: "new_rows", Count: int(s.NewRows)},
		{Name: "ready", Count: s.Ready},
		{Name: "match_found", Count: s.MatchFound},
		{Name: "manual_review", Count: s.ManualReview},
		{Name: "preserved", Count: s.Preserved},
		{Name: "skipped", Count: s.Skipped},
		{Name: "unchanged", Count: s.Unchanged},
		{Name: "errors", Count: s.Errors},
	}
}

// Run synchronizes the mapping table with staging, then rebuilds the proposal
// of every transformable row. Database failures abort the phase; a per-row
// transformation failure is absorbed into the errors bucket.
func (t *Transformer) Run(ctx context.Context) (*TransformSummary, error) {
	sum := &TransformSummary{}

	created, err := t.Store.EnsureMappingRows(ctx)
	if err != nil {
		return nil, err
	}
	sum.NewRows = created
	if created > 0 {
		t.Log.Tag("transform", "%d new mapping row(s) created", created)
	}

	lookups, err := t.Store.LoadLookups(ctx)
	if err != nil {
		return nil, err
	}
	cfMappings, err := t.Store.LoadCustomFieldMappings(ctx)
	if err != nil {
		return nil, err
	}
	parents, err := t.Store.ResolvedParents(ctx)
	if err != nil {
		return nil, err
	}
	attByIssue, err := t.Store.AttachmentMappingsByIssue(ctx)
	if err != nil {
		return nil, err
	}

	normalizer := customfields.New(cfMappings)
	matcher := attachments.NewMatcher(t.JiraBaseURL)

	joins, err := t.Store.IssueJoins(ctx)
	if err != nil {
		return nil, err
	}

	for i := range joins {
		row := &joins[i]
		if !row.Mapping.MigrationStatus.Transformable() {
			sum.Skipped++
			continue
		}

		// A hash mismatch means an operator edited the automation-managed
		// columns by hand; the row is theirs now.
		if row.Mapping.AutomationHash != "" &&
			row.Mapping.AutomationHash != autohash.ForMapping(&row.Mapping) {
			t.Log.Tag("preserved", "%s: manual override detected, row left untouched", row.Mapping.JiraIssueKey)
			if t.Metrics != nil {
				t.Metrics.Transformed(ctx, "preserved")
			}
			sum.Preserved++
			continue
		}

		ix := attachments.NewIndex(attByIssue[row.Mapping.JiraIssueID])
		proposal, err := t.buildProposal(row, lookups, normalizer, parents, matcher, ix)
		if err != nil {
			t.Log.Error("%s: %v", row.Mapping.JiraIssueKey, err)
			if t.Metrics != nil {
				t.Metrics.ItemError(ctx, "transform")
			}
			sum.Errors++
			continue
		}

		if proposal.AutomationHash == row.Mapping.AutomationHash &&
			proposal.MigrationStatus == row.Mapping.MigrationStatus {
			sum.Unchanged++
			continue
		}

		if err := t.Store.UpdateProposal(ctx, proposal); err != nil {
			return sum, err
		}

		bucket := ""
		switch proposal.MigrationStatus {
		case types.StatusReadyForCreation:
			sum.Ready++
			bucket = "ready"
		case types.StatusMatchFound:
			sum.MatchFound++
			bucket = "match_found"
		case types.StatusManualIntervention:
			sum.ManualReview++
			bucket = "manual_review"
			t.Log.Tag("manual", "%s: %s", proposal.JiraIssueKey, deref(proposal.MigrationNotes))
		}
		if t.Metrics != nil && bucket != "" {
			t.Metrics.Transformed(ctx, bucket)
		}
	}

	return sum, nil
}

// buildProposal computes the full automation-managed column set for one row.
// The input mapping is copied; denormalized Jira ids and the operator notes
// column are never touched here.
func (t *Transformer) buildProposal(row *storage.IssueJoin, lookups *storage.Lookups,
	normalizer *customfields.Normalizer, parents map[int64]int64,
	matcher *attachments.Matcher, ix *attachments.Index) (*types.IssueMapping, error) {

	issue := &row.Issue
	m := row.Mapping

	m.RedmineProjectID = resolveOrDefault(lookups.Projects, strconv.FormatInt(issue.ProjectID, 10), t.Issues.DefaultProjectID)
	m.RedmineTrackerID = resolveOrDefault(lookups.Trackers, issue.IssueTypeID, t.Issues.DefaultTrackerID)
	m.RedmineStatusID = resolveOrDefault(lookups.Statuses, issue.StatusID, t.Issues.DefaultStatusID)
	m.RedminePriorityID = resolveOrDefault(lookups.Priorities, issue.PriorityID, t.Issues.DefaultPriorityID)
	m.RedmineAuthorID = resolveOrDefault(lookups.Users, issue.ReporterAccountID, t.Issues.DefaultAuthorID)

	// An issue unassigned in Jira stays unassigned; the default assignee only
	// covers assignees that exist but have no user mapping.
	m.RedmineAssigneeID = nil
	if issue.AssigneeAccountID != "" {
		m.RedmineAssigneeID = resolveOrDefault(lookups.Users, issue.AssigneeAccountID, t.Issues.DefaultAssigneeID)
	}

	m.RedmineParentIssueID = nil
	if issue.ParentID != nil {
		if rid, ok := parents[*issue.ParentID]; ok {
			m.RedmineParentIssueID = &rid
		}
	}

	m.ProposedSubject = issue.Summary
	m.ProposedDescription = t.buildDescription(issue, matcher, ix)

	m.ProposedStartDate = nil
	if issue.CreatedAt != nil {
		m.ProposedStartDate = strp(issue.CreatedAt.UTC().Format("2006-01-02"))
	}
	m.ProposedDueDate = nil
	if issue.DueDate != nil {
		m.ProposedDueDate = strp(issue.DueDate.Format("2006-01-02"))
	}

	m.ProposedDoneRatio = nil
	if issue.StatusCategory == "done" {
		done := 100
		m.ProposedDoneRatio = &done
	}

	m.ProposedEstimatedHours = nil
	if issue.OriginalEstimate != nil && *issue.OriginalEstimate > 0 {
		// Two decimals, matching the column precision: an unrounded value
		// would hash differently from what the database hands back.
		hours := math.Round(float64(*issue.OriginalEstimate)/3600*100) / 100
		m.ProposedEstimatedHours = &hours
	}

	fieldsMap, err := decodeRawFields(issue)
	if err != nil {
		return nil, err
	}

	m.ProposedIsPrivate = t.Issues.DefaultIsPrivate
	if sec := jira.NewValue(fieldsMap["security"]); !sec.IsNull() {
		m.ProposedIsPrivate = true
	}

	payload, warnings := normalizer.Payload(fieldsMap)
	for _, w := range warnings {
		t.Log.Warn("%s: %s", issue.Key, w)
	}
	m.ProposedCustomFieldPayload = nil
	if len(payload) > 0 {
		encoded, err := encodeCustomFieldPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("encode custom field payload: %w", err)
		}
		m.ProposedCustomFieldPayload = &encoded
	}

	var notes []string
	if m.RedmineIssueID != nil {
		m.MigrationStatus = types.StatusMatchFound
	} else {
		if m.RedmineProjectID == nil {
			notes = append(notes, "Project not mapped: "+strconv.FormatInt(issue.ProjectID, 10))
		}
		if m.RedmineTrackerID == nil {
			notes = append(notes, "Tracker not mapped: "+issue.IssueTypeID)
		}
		if m.RedmineStatusID == nil {
			notes = append(notes, "Status not mapped: "+issue.StatusID)
		}
		if issue.PriorityID != "" && m.RedminePriorityID == nil {
			notes = append(notes, "Priority not mapped: "+issue.PriorityID)
		}
		if issue.ReporterAccountID != "" && m.RedmineAuthorID == nil {
			notes = append(notes, "Reporter not mapped: "+issue.ReporterAccountID)
		}
		if issue.AssigneeAccountID != "" && m.RedmineAssigneeID == nil {
			notes = append(notes, "Assignee not mapped: "+issue.AssigneeAccountID)
		}
		if len(notes) > 0 {
			m.MigrationStatus = types.StatusManualIntervention
		} else {
			m.MigrationStatus = types.StatusReadyForCreation
		}
	}
	if len(notes) > 0 {
		m.MigrationNotes = strp(strings.Join(notes, "; "))
	} else {
		m.MigrationNotes = nil
	}

	m.AutomationHash = autohash.ForMapping(&m)
	return &m, nil
}

// buildDescription runs the description pipeline: rendered HTML when usable,
// otherwise the ADF renderer with plain text as its fallback; then the
// Markdown-level attachment rewrite and cleanup passes. An issue with no
// description at all proposes NULL.
func (t *Transformer) buildDescription(issue *types.JiraIssue, matcher *attachments.Matcher, ix *attachments.Index) *string {
	var out string

	if htmlmd.Usable(issue.DescriptionHTML) {
		converted, _, err := htmlmd.Convert(issue.DescriptionHTML, matcher, ix)
		if err != nil {
			t.Log.Warn("%s: html conversion failed, falling back to adf: %v", issue.Key, err)
		} else {
			out = converted
		}
	}
	if out == "" {
		if md, ok := adf.ToMarkdown(issue.DescriptionADF); ok && strings.TrimSpace(md) != "" {
			out = md
		} else {
			out = adf.ToPlainText(issue.DescriptionADF)
		}
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}

	out, _ = attachments.Rewrite(out, matcher, ix)
	out = attachments.StripTitles(out, ix)
	out = text.CollapseNewlines(strings.TrimSpace(out))
	return &out
}

func decodeRawFields(issue *types.JiraIssue) (map[string]json.RawMessage, error) {
	if len(issue.RawPayload) == 0 {
		return nil, nil
	}
	var payload struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(issue.RawPayload, &payload); err != nil {
		return nil, fmt.Errorf("decode staged payload: %w", err)
	}
	return payload.Fields, nil
}

// encodeCustomFieldPayload writes the payload compact and unescaped, so the
// stored column matches what the pusher sends byte for byte.
func encodeCustomFieldPayload(values []types.CustomFieldValue) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(values); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func resolveOrDefault(l storage.Lookup, jiraID string, fallback int64) *int64 {
	if jiraID != "" {
		if id, ok := l.Resolve(jiraID); ok {
			return &id
		}
	}
	if fallback > 0 {
		f := fallback
		return &f
	}
	return nil
}

func strp(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
