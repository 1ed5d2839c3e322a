package storage

import (
	"context"
	"database/sql"
	"fmt"

	"jira2redmine/internal/types"
)

const upsertIssueSQL = `
INSERT INTO staging_jira_issues (
    id, issue_key, project_id, project_key, issue_type_id, status_id,
    status_category, priority_id, reporter_account_id, assignee_account_id,
    parent_issue_id, summary, description_adf, description_html, labels,
    fix_versions, components, due_date, time_original_estimate,
    time_remaining_estimate, time_spent, created_at, updated_at, resolved_at,
    raw_payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    issue_key = VALUES(issue_key),
    project_id = VALUES(project_id),
    project_key = VALUES(project_key),
    issue_type_id = VALUES(issue_type_id),
    status_id = VALUES(status_id),
    status_category = VALUES(status_category),
    priority_id = VALUES(priority_id),
    reporter_account_id = VALUES(reporter_account_id),
    assignee_account_id = VALUES(assignee_account_id),
    parent_issue_id = VALUES(parent_issue_id),
    summary = VALUES(summary),
    description_adf = VALUES(description_adf),
    description_html = VALUES(description_html),
    labels = VALUES(labels),
    fix_versions = VALUES(fix_versions),
    components = VALUES(components),
    due_date = VALUES(due_date),
    time_original_estimate = VALUES(time_original_estimate),
    time_remaining_estimate = VALUES(time_remaining_estimate),
    time_spent = VALUES(time_spent),
    created_at = VALUES(created_at),
    updated_at = VALUES(updated_at),
    resolved_at = VALUES(resolved_at),
    raw_payload = VALUES(raw_payload)`

const upsertLabelSQL = `INSERT IGNORE INTO staging_jira_labels (name) VALUES (?)`

const upsertLinkSQL = `
INSERT INTO staging_jira_issue_links (link_id, link_type_id, link_type_name, source_issue_id, target_issue_id)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    link_type_id = VALUES(link_type_id),
    link_type_name = VALUES(link_type_name),
    source_issue_id = VALUES(source_issue_id),
    target_issue_id = VALUES(target_issue_id)`

const upsertAttachmentSQL = `
INSERT INTO staging_jira_attachments (id, issue_id, filename, size_bytes, mime_type, content_url, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    issue_id = VALUES(issue_id),
    filename = VALUES(filename),
    size_bytes = VALUES(size_bytes),
    mime_type = VALUES(mime_type),
    content_url = VALUES(content_url),
    created_at = VALUES(created_at)`

const (
	deleteSamplesSQL = `DELETE FROM staging_jira_object_samples WHERE field_id = ? AND issue_key = ?`
	deleteKVSQL      = `DELETE FROM staging_jira_object_kv WHERE field_id = ? AND issue_key = ?`
	insertSampleSQL  = `INSERT INTO staging_jira_object_samples (field_id, issue_key, ordinal, raw_value) VALUES (?, ?, ?, ?)`
	insertKVSQL      = `INSERT INTO staging_jira_object_kv (field_id, issue_key, path, ordinal, value) VALUES (?, ?, ?, ?, ?)`
)

// MappedProjects returns the Jira projects eligible for extraction, ordered
// by project key. includeExtracted keeps projects already stamped with
// issues_extracted_at; keyFilter restricts to one project key when non-empty.
// A mapping row whose staging snapshot is missing comes back with an empty
// key and is skipped (with a warning) by the extractor.
func (s *Store) MappedProjects(ctx context.Context, includeExtracted bool, keyFilter string) ([]types.ProjectMapping, error) {
	query := `
SELECT p.jira_project_id, COALESCE(s.project_key, ''), COALESCE(p.redmine_project_id, 0), p.issues_extracted_at
FROM migration_mapping_projects p
LEFT JOIN staging_jira_projects s ON s.id = p.jira_project_id`
	var (
		conds []string
		args  []any
	)
	if !includeExtracted {
		conds = append(conds, "p.issues_extracted_at IS NULL")
	}
	if keyFilter != "" {
		conds = append(conds, "s.project_key = ?")
		args = append(args, keyFilter)
	}
	for i, c := range conds {
		if i == 0 {
			query += "\nWHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += "\nORDER BY s.project_key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load mapped projects: %w", err)
	}
	defer rows.Close()

	var out []types.ProjectMapping
	for rows.Next() {
		var (
			p  types.ProjectMapping
			at sql.NullTime
		)
		if err := rows.Scan(&p.JiraProjectID, &p.JiraProjectKey, &p.RedmineProjectID, &at); err != nil {
			return nil, fmt.Errorf("scan mapped project: %w", err)
		}
		p.IssuesExtractedAt = timePtr(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertIssue writes one staged issue, insert or full-row update.
func (s *Store) UpsertIssue(ctx context.Context, issue *types.JiraIssue) error {
	_, err := s.upsertIssue.ExecContext(ctx,
		issue.ID, issue.Key, issue.ProjectID, issue.ProjectKey,
		issue.IssueTypeID, issue.StatusID, issue.StatusCategory,
		issue.PriorityID, issue.ReporterAccountID, issue.AssigneeAccountID,
		nullInt64(issue.ParentID), issue.Summary,
		nullRaw(issue.DescriptionADF), nullStr(issue.DescriptionHTML),
		nullStr(issue.LabelsJSON), nullStr(issue.FixVersionsJSON),
		nullStr(issue.ComponentsJSON), nullDate(issue.DueDate),
		nullInt64(issue.OriginalEstimate), nullInt64(issue.RemainingEstimate),
		nullInt64(issue.TimeSpent), nullTime(issue.CreatedAt),
		nullTime(issue.UpdatedAt), nullTime(issue.ResolvedAt),
		nullRaw(issue.RawPayload),
	)
	if err != nil {
		return fmt.Errorf("upsert issue %s: %w", issue.Key, err)
	}
	return nil
}

// UpsertLabels inserts labels into the global dictionary, ignoring known ones.
func (s *Store) UpsertLabels(ctx context.Context, labels []string) error {
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, err := s.upsertLabel.ExecContext(ctx, label); err != nil {
			return fmt.Errorf("upsert label %q: %w", label, err)
		}
	}
	return nil
}

// UpsertIssueLinks writes canonicalized links keyed by the Jira link id.
func (s *Store) UpsertIssueLinks(ctx context.Context, links []types.JiraIssueLink) error {
	for _, l := range links {
		if _, err := s.upsertLink.ExecContext(ctx, l.LinkID, l.LinkTypeID, l.LinkTypeName, l.SourceID, l.TargetID); err != nil {
			return fmt.Errorf("upsert issue link %d: %w", l.LinkID, err)
		}
	}
	return nil
}

// UpsertAttachments writes staged attachment metadata rows.
func (s *Store) UpsertAttachments(ctx context.Context, rows []types.JiraAttachment) error {
	for _, a := range rows {
		_, err := s.upsertAttachment.ExecContext(ctx,
			a.ID, a.IssueID, a.Filename, a.SizeBytes, a.MimeType,
			nullStr(a.ContentURL), nullTime(a.CreatedAt))
		if err != nil {
			return fmt.Errorf("upsert attachment %d: %w", a.ID, err)
		}
	}
	return nil
}

// ReplaceObjectSamples refreshes the object-schema rows of one (field, issue)
// pair: old samples and KV rows are deleted, fresh ones inserted.
func (s *Store) ReplaceObjectSamples(ctx context.Context, fieldID, issueKey string, samples []types.JiraObjectSample, kvs []types.JiraObjectKV) error {
	if _, err := s.deleteSamples.ExecContext(ctx, fieldID, issueKey); err != nil {
		return fmt.Errorf("delete object samples %s/%s: %w", fieldID, issueKey, err)
	}
	if _, err := s.deleteKV.ExecContext(ctx, fieldID, issueKey); err != nil {
		return fmt.Errorf("delete object kv %s/%s: %w", fieldID, issueKey, err)
	}
	for _, sample := range samples {
		if _, err := s.insertSample.ExecContext(ctx, sample.FieldID, sample.IssueKey, sample.Ordinal, nullRaw(sample.Raw)); err != nil {
			return fmt.Errorf("insert object sample %s/%s#%d: %w", fieldID, issueKey, sample.Ordinal, err)
		}
	}
	for _, kv := range kvs {
		if _, err := s.insertKV.ExecContext(ctx, kv.FieldID, kv.IssueKey, kv.Path, kv.Ordinal, kv.Value); err != nil {
			return fmt.Errorf("insert object kv %s/%s %s: %w", fieldID, issueKey, kv.Path, err)
		}
	}
	return nil
}

// MarkExtracted stamps issues_extracted_at on the project mapping row after a
// complete keyset sweep.
func (s *Store) MarkExtracted(ctx context.Context, jiraProjectID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_projects SET issues_extracted_at = UTC_TIMESTAMP() WHERE jira_project_id = ?`,
		jiraProjectID)
	if err != nil {
		return fmt.Errorf("mark project %d extracted: %w", jiraProjectID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark project %d extracted: %w", jiraProjectID, ErrNoMapping)
	}
	return nil
}

func nullRaw(raw []byte) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
