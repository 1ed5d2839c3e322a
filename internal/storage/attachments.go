package storage

import (
	"context"
	"database/sql"
	"fmt"

	"jira2redmine/internal/types"
)

const attachmentMappingSelect = `
SELECT jira_attachment_id, jira_issue_id, filename, content_type, file_size,
       COALESCE(redmine_upload_token, ''), COALESCE(sharepoint_url, ''),
       association_target, migration_status, migration_notes
FROM migration_mapping_attachments`

// AttachmentMappingsByIssue loads every issue-associated attachment mapping
// row, grouped by Jira issue id. Journal attachments belong to the journal
// migration tool and are excluded.
func (s *Store) AttachmentMappingsByIssue(ctx context.Context) (map[int64][]types.AttachmentMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		attachmentMappingSelect+`
WHERE association_target = ?
ORDER BY jira_issue_id, jira_attachment_id`, types.AssociationIssue)
	if err != nil {
		return nil, fmt.Errorf("load attachment mappings: %w", err)
	}
	defer rows.Close()

	out := map[int64][]types.AttachmentMapping{}
	for rows.Next() {
		a, err := scanAttachmentMapping(rows)
		if err != nil {
			return nil, err
		}
		out[a.JiraIssueID] = append(out[a.JiraIssueID], *a)
	}
	return out, rows.Err()
}

// AttachmentMappings loads one issue's attachment mapping rows in stable
// jira_attachment_id order.
func (s *Store) AttachmentMappings(ctx context.Context, jiraIssueID int64) ([]types.AttachmentMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		attachmentMappingSelect+`
WHERE jira_issue_id = ? AND association_target = ?
ORDER BY jira_attachment_id`, jiraIssueID, types.AssociationIssue)
	if err != nil {
		return nil, fmt.Errorf("load attachments of issue %d: %w", jiraIssueID, err)
	}
	defer rows.Close()

	var out []types.AttachmentMapping
	for rows.Next() {
		a, err := scanAttachmentMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAttachmentMapping(rows *sql.Rows) (*types.AttachmentMapping, error) {
	var (
		a      types.AttachmentMapping
		status string
		notes  sql.NullString
	)
	err := rows.Scan(&a.JiraAttachmentID, &a.JiraIssueID, &a.Filename,
		&a.ContentType, &a.FileSize, &a.RedmineUploadToken, &a.SharePointURL,
		&a.AssociationTarget, &status, &notes)
	if err != nil {
		return nil, fmt.Errorf("scan attachment mapping: %w", err)
	}
	a.MigrationStatus = types.MigrationStatus(status)
	a.MigrationNotes = strPtr(notes)
	return &a, nil
}

// PendingAttachmentCounts returns how many of an issue's attachments are
// still being moved (PENDING_DOWNLOAD or PENDING_UPLOAD) and how many await
// association. The pusher blocks the issue while the first count is non-zero.
func (s *Store) PendingAttachmentCounts(ctx context.Context, jiraIssueID int64) (pendingTransfer, pendingAssociation int, err error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT migration_status, COUNT(*)
FROM migration_mapping_attachments
WHERE jira_issue_id = ? AND association_target = ?
GROUP BY migration_status`, jiraIssueID, types.AssociationIssue)
	if err != nil {
		return 0, 0, fmt.Errorf("count pending attachments of issue %d: %w", jiraIssueID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, fmt.Errorf("scan pending attachment count: %w", err)
		}
		switch types.MigrationStatus(status) {
		case types.StatusPendingDownload, types.StatusPendingUpload:
			pendingTransfer += n
		case types.StatusPendingAssociation:
			pendingAssociation += n
		}
	}
	return pendingTransfer, pendingAssociation, rows.Err()
}

// MarkAttachmentOutcome records the push outcome of one attachment mapping
// row. An empty note clears the column.
func (s *Store) MarkAttachmentOutcome(ctx context.Context, jiraAttachmentID int64, status types.MigrationStatus, note string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_attachments SET migration_status = ?, migration_notes = ? WHERE jira_attachment_id = ?`,
		string(status), nullStr(note), jiraAttachmentID)
	if err != nil {
		return fmt.Errorf("mark attachment %d: %w", jiraAttachmentID, err)
	}
	return nil
}
