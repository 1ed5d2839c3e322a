// Package autohash computes the automation hash that guards operator edits.
// The hash covers exactly the automation-managed fields of an issue mapping
// row; the transformer refuses to overwrite a row whose stored hash no longer
// matches a recomputation over its stored fields.
package autohash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"jira2redmine/internal/canonjson"
	"jira2redmine/internal/types"
)

// ForMapping hashes the automation-managed fields of m. Field order is fixed;
// changing it changes every hash, so it must stay stable across releases.
func ForMapping(m *types.IssueMapping) string {
	o := canonjson.New().
		OptInt64("redmine_issue_id", m.RedmineIssueID).
		OptInt64("redmine_project_id", m.RedmineProjectID).
		OptInt64("redmine_tracker_id", m.RedmineTrackerID).
		OptInt64("redmine_status_id", m.RedmineStatusID).
		OptInt64("redmine_priority_id", m.RedminePriorityID).
		OptInt64("redmine_author_id", m.RedmineAuthorID).
		OptInt64("redmine_assignee_id", m.RedmineAssigneeID).
		OptInt64("redmine_parent_issue_id", m.RedmineParentIssueID).
		String("proposed_subject", m.ProposedSubject).
		OptString("proposed_description", m.ProposedDescription).
		OptString("proposed_start_date", m.ProposedStartDate).
		OptString("proposed_due_date", m.ProposedDueDate).
		OptInt("proposed_done_ratio", m.ProposedDoneRatio).
		OptFloat("proposed_estimated_hours", m.ProposedEstimatedHours).
		Bool("proposed_is_private", m.ProposedIsPrivate)
	if m.ProposedCustomFieldPayload != nil {
		o.Raw("proposed_custom_field_payload", json.RawMessage(*m.ProposedCustomFieldPayload))
	} else {
		o.Null("proposed_custom_field_payload")
	}
	sum := sha256.Sum256(o.Bytes())
	return hex.EncodeToString(sum[:])
}
