package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jira2redmine/internal/types"
)

// EnsureMappingRows creates a PENDING_ANALYSIS mapping row for every staged
// issue that has none yet, copying the denormalized Jira attribute ids.
// Returns the number of rows created.
func (s *Store) EnsureMappingRows(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT IGNORE INTO migration_mapping_issues (
    jira_issue_id, jira_issue_key, jira_project_id, jira_issue_type_id,
    jira_status_id, jira_priority_id, jira_reporter_account_id,
    jira_assignee_account_id, jira_parent_issue_id, migration_status
)
SELECT s.id, s.issue_key, s.project_id, s.issue_type_id,
       s.status_id, s.priority_id, s.reporter_account_id,
       s.assignee_account_id, s.parent_issue_id, 'PENDING_ANALYSIS'
FROM staging_jira_issues s
LEFT JOIN migration_mapping_issues m ON m.jira_issue_id = s.id
WHERE m.jira_issue_id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("ensure mapping rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// IssueJoin is one mapping row joined with its staged issue.
type IssueJoin struct {
	Mapping types.IssueMapping
	Issue   types.JiraIssue
}

const issueJoinSelect = `
SELECT m.mapping_id, m.jira_issue_id, m.jira_issue_key, m.jira_project_id,
       m.jira_issue_type_id, m.jira_status_id, m.jira_priority_id,
       m.jira_reporter_account_id, m.jira_assignee_account_id, m.jira_parent_issue_id,
       m.redmine_issue_id, m.redmine_project_id, m.redmine_tracker_id,
       m.redmine_status_id, m.redmine_priority_id, m.redmine_author_id,
       m.redmine_assignee_id, m.redmine_parent_issue_id,
       m.proposed_subject, m.proposed_description, m.proposed_start_date,
       m.proposed_due_date, m.proposed_done_ratio, m.proposed_estimated_hours,
       m.proposed_is_private, m.proposed_custom_field_payload,
       m.automation_hash, m.migration_status, m.migration_notes,
       s.id, s.issue_key, s.project_id, s.project_key, s.issue_type_id,
       s.status_id, s.status_category, s.priority_id, s.reporter_account_id,
       s.assignee_account_id, s.parent_issue_id, s.summary, s.description_adf,
       s.description_html, s.labels, s.fix_versions, s.components, s.due_date,
       s.time_original_estimate, s.time_remaining_estimate, s.time_spent,
       s.created_at, s.updated_at, s.resolved_at, s.raw_payload
FROM migration_mapping_issues m
JOIN staging_jira_issues s ON s.id = m.jira_issue_id`

// IssueJoins reads mapping rows joined with their staged issues in ascending
// mapping_id order, optionally filtered to a status set.
func (s *Store) IssueJoins(ctx context.Context, statuses ...types.MigrationStatus) ([]IssueJoin, error) {
	query := issueJoinSelect
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += "\nWHERE m.migration_status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += "\nORDER BY m.mapping_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load issue joins: %w", err)
	}
	defer rows.Close()

	var out []IssueJoin
	for rows.Next() {
		j, err := scanIssueJoin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func scanIssueJoin(rows *sql.Rows) (*IssueJoin, error) {
	var (
		j IssueJoin

		mParent   sql.NullInt64
		rIssue    sql.NullInt64
		rProject  sql.NullInt64
		rTracker  sql.NullInt64
		rStatus   sql.NullInt64
		rPriority sql.NullInt64
		rAuthor   sql.NullInt64
		rAssignee sql.NullInt64
		rParent   sql.NullInt64
		pDesc     sql.NullString
		pStart    sql.NullTime
		pDue      sql.NullTime
		pDone     sql.NullInt64
		pHours    sql.NullFloat64
		pPrivate  int
		pPayload  sql.NullString
		mStatus   string
		mNotes    sql.NullString

		sParent   sql.NullInt64
		sADF      sql.NullString
		sHTML     sql.NullString
		sLabels   sql.NullString
		sFixVers  sql.NullString
		sComps    sql.NullString
		sDue      sql.NullTime
		sEstimate sql.NullInt64
		sRemain   sql.NullInt64
		sSpent    sql.NullInt64
		sCreated  sql.NullTime
		sUpdated  sql.NullTime
		sResolved sql.NullTime
		sRaw      sql.NullString
	)

	err := rows.Scan(
		&j.Mapping.MappingID, &j.Mapping.JiraIssueID, &j.Mapping.JiraIssueKey,
		&j.Mapping.JiraProjectID, &j.Mapping.JiraIssueTypeID, &j.Mapping.JiraStatusID,
		&j.Mapping.JiraPriorityID, &j.Mapping.JiraReporterAccountID,
		&j.Mapping.JiraAssigneeAccountID, &mParent,
		&rIssue, &rProject, &rTracker, &rStatus, &rPriority, &rAuthor, &rAssignee, &rParent,
		&j.Mapping.ProposedSubject, &pDesc, &pStart, &pDue, &pDone, &pHours,
		&pPrivate, &pPayload, &j.Mapping.AutomationHash, &mStatus, &mNotes,
		&j.Issue.ID, &j.Issue.Key, &j.Issue.ProjectID, &j.Issue.ProjectKey,
		&j.Issue.IssueTypeID, &j.Issue.StatusID, &j.Issue.StatusCategory,
		&j.Issue.PriorityID, &j.Issue.ReporterAccountID, &j.Issue.AssigneeAccountID,
		&sParent, &j.Issue.Summary, &sADF, &sHTML, &sLabels, &sFixVers, &sComps,
		&sDue, &sEstimate, &sRemain, &sSpent, &sCreated, &sUpdated, &sResolved, &sRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("scan issue join: %w", err)
	}

	j.Mapping.JiraParentID = int64Ptr(mParent)
	j.Mapping.RedmineIssueID = int64Ptr(rIssue)
	j.Mapping.RedmineProjectID = int64Ptr(rProject)
	j.Mapping.RedmineTrackerID = int64Ptr(rTracker)
	j.Mapping.RedmineStatusID = int64Ptr(rStatus)
	j.Mapping.RedminePriorityID = int64Ptr(rPriority)
	j.Mapping.RedmineAuthorID = int64Ptr(rAuthor)
	j.Mapping.RedmineAssigneeID = int64Ptr(rAssignee)
	j.Mapping.RedmineParentIssueID = int64Ptr(rParent)
	j.Mapping.ProposedDescription = strPtr(pDesc)
	j.Mapping.ProposedStartDate = datePtr(pStart)
	j.Mapping.ProposedDueDate = datePtr(pDue)
	j.Mapping.ProposedDoneRatio = intPtr(pDone)
	j.Mapping.ProposedEstimatedHours = floatPtr(pHours)
	j.Mapping.ProposedIsPrivate = pPrivate != 0
	j.Mapping.ProposedCustomFieldPayload = strPtr(pPayload)
	j.Mapping.MigrationStatus = types.MigrationStatus(mStatus)
	j.Mapping.MigrationNotes = strPtr(mNotes)

	j.Issue.ParentID = int64Ptr(sParent)
	if sADF.Valid {
		j.Issue.DescriptionADF = []byte(sADF.String)
	}
	if sHTML.Valid {
		j.Issue.DescriptionHTML = sHTML.String
	}
	if sLabels.Valid {
		j.Issue.LabelsJSON = sLabels.String
	}
	if sFixVers.Valid {
		j.Issue.FixVersionsJSON = sFixVers.String
	}
	if sComps.Valid {
		j.Issue.ComponentsJSON = sComps.String
	}
	j.Issue.DueDate = timePtr(sDue)
	j.Issue.OriginalEstimate = int64Ptr(sEstimate)
	j.Issue.RemainingEstimate = int64Ptr(sRemain)
	j.Issue.TimeSpent = int64Ptr(sSpent)
	j.Issue.CreatedAt = timePtr(sCreated)
	j.Issue.UpdatedAt = timePtr(sUpdated)
	j.Issue.ResolvedAt = timePtr(sResolved)
	if sRaw.Valid {
		j.Issue.RawPayload = []byte(sRaw.String)
	}
	return &j, nil
}

const updateProposalSQL = `
UPDATE migration_mapping_issues SET
    redmine_issue_id = ?,
    redmine_project_id = ?,
    redmine_tracker_id = ?,
    redmine_status_id = ?,
    redmine_priority_id = ?,
    redmine_author_id = ?,
    redmine_assignee_id = ?,
    redmine_parent_issue_id = ?,
    proposed_subject = ?,
    proposed_description = ?,
    proposed_start_date = ?,
    proposed_due_date = ?,
    proposed_done_ratio = ?,
    proposed_estimated_hours = ?,
    proposed_is_private = ?,
    proposed_custom_field_payload = ?,
    automation_hash = ?,
    migration_status = ?,
    migration_notes = ?
WHERE mapping_id = ?`

// UpdateProposal persists the transformer's full proposal for one row.
func (s *Store) UpdateProposal(ctx context.Context, m *types.IssueMapping) error {
	isPrivate := 0
	if m.ProposedIsPrivate {
		isPrivate = 1
	}
	_, err := s.updateProposal.ExecContext(ctx,
		nullInt64(m.RedmineIssueID), nullInt64(m.RedmineProjectID),
		nullInt64(m.RedmineTrackerID), nullInt64(m.RedmineStatusID),
		nullInt64(m.RedminePriorityID), nullInt64(m.RedmineAuthorID),
		nullInt64(m.RedmineAssigneeID), nullInt64(m.RedmineParentIssueID),
		m.ProposedSubject, nullStrPtr(m.ProposedDescription),
		nullStrPtr(m.ProposedStartDate), nullStrPtr(m.ProposedDueDate),
		nullInt(m.ProposedDoneRatio), nullFloat(m.ProposedEstimatedHours),
		isPrivate, nullStrPtr(m.ProposedCustomFieldPayload),
		m.AutomationHash, string(m.MigrationStatus), nullStrPtr(m.MigrationNotes),
		m.MappingID,
	)
	if err != nil {
		return fmt.Errorf("update proposal %s: %w", m.JiraIssueKey, err)
	}
	return nil
}

// UpdateMappingStatus moves one row to a new status with operator-facing
// notes. An empty notes string clears the column.
func (s *Store) UpdateMappingStatus(ctx context.Context, mappingID int64, status types.MigrationStatus, notes string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_issues SET migration_status = ?, migration_notes = ? WHERE mapping_id = ?`,
		string(status), nullStr(notes), mappingID)
	if err != nil {
		return fmt.Errorf("update mapping %d status: %w", mappingID, err)
	}
	return nil
}

// RecordCreation marks one row CREATION_SUCCESS with its new Redmine issue
// id and clears the notes.
func (s *Store) RecordCreation(ctx context.Context, mappingID, redmineIssueID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE migration_mapping_issues
SET redmine_issue_id = ?, migration_status = ?, migration_notes = NULL
WHERE mapping_id = ?`,
		redmineIssueID, string(types.StatusCreationSuccess), mappingID)
	if err != nil {
		return fmt.Errorf("record creation %d: %w", mappingID, err)
	}
	return nil
}
