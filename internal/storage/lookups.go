package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"jira2redmine/internal/types"
)

// LookupEntry is one resolved mapping table row.
type LookupEntry struct {
	RedmineID int64
	Status    types.MigrationStatus
}

// Lookup is an immutable per-entity index from a Jira id to its Redmine id.
type Lookup map[string]LookupEntry

// Resolve returns the Redmine id when the mapping exists and its status
// counts as resolved (MATCH_FOUND or CREATION_SUCCESS).
func (l Lookup) Resolve(jiraID string) (int64, bool) {
	e, ok := l[jiraID]
	if !ok || !e.Status.Resolved() {
		return 0, false
	}
	return e.RedmineID, true
}

// Lookups bundles the per-entity indices the transformer joins against.
type Lookups struct {
	Projects   Lookup
	Trackers   Lookup
	Statuses   Lookup
	Priorities Lookup
	Users      Lookup
}

// LoadLookups reads the five mapping tables into memory. The indices are
// read-only for the rest of the run.
func (s *Store) LoadLookups(ctx context.Context) (*Lookups, error) {
	l := &Lookups{}
	tables := []struct {
		dst   *Lookup
		query string
	}{
		{&l.Projects, `SELECT jira_project_id, redmine_project_id, migration_status FROM migration_mapping_projects WHERE redmine_project_id IS NOT NULL`},
		{&l.Trackers, `SELECT jira_issue_type_id, redmine_tracker_id, migration_status FROM migration_mapping_trackers WHERE redmine_tracker_id IS NOT NULL`},
		{&l.Statuses, `SELECT jira_status_id, redmine_status_id, migration_status FROM migration_mapping_statuses WHERE redmine_status_id IS NOT NULL`},
		{&l.Priorities, `SELECT jira_priority_id, redmine_priority_id, migration_status FROM migration_mapping_priorities WHERE redmine_priority_id IS NOT NULL`},
		{&l.Users, `SELECT jira_account_id, redmine_user_id, migration_status FROM migration_mapping_users WHERE redmine_user_id IS NOT NULL`},
	}
	for _, t := range tables {
		idx, err := s.loadLookup(ctx, t.query)
		if err != nil {
			return nil, err
		}
		*t.dst = idx
	}
	return l, nil
}

func (s *Store) loadLookup(ctx context.Context, query string) (Lookup, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load lookup: %w", err)
	}
	defer rows.Close()

	idx := Lookup{}
	for rows.Next() {
		var (
			jiraID    string
			redmineID int64
			status    string
		)
		if err := rows.Scan(&jiraID, &redmineID, &status); err != nil {
			return nil, fmt.Errorf("scan lookup row: %w", err)
		}
		idx[jiraID] = LookupEntry{RedmineID: redmineID, Status: types.MigrationStatus(status)}
	}
	return idx, rows.Err()
}

// LoadCustomFieldMappings reads the resolved custom field mapping rows in
// stable jira_field_id order, with the cascading parent reference resolved to
// the parent's Redmine custom field id. Enumeration keys are lowercased here
// so the normalizer can match case-insensitively.
func (s *Store) LoadCustomFieldMappings(ctx context.Context) ([]types.CustomFieldMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.jira_field_id, c.redmine_custom_field_id, c.field_format, c.is_multiple,
       c.enumeration_mapping, c.cascading_option_mapping, p.redmine_custom_field_id
FROM migration_mapping_custom_fields c
LEFT JOIN migration_mapping_custom_fields p ON p.jira_field_id = c.mapping_parent_custom_field_id
WHERE c.redmine_custom_field_id IS NOT NULL
  AND c.migration_status IN ('MATCH_FOUND', 'CREATION_SUCCESS')
ORDER BY c.jira_field_id`)
	if err != nil {
		return nil, fmt.Errorf("load custom field mappings: %w", err)
	}
	defer rows.Close()

	var out []types.CustomFieldMapping
	for rows.Next() {
		var (
			m        types.CustomFieldMapping
			enumJSON sql.NullString
			cascJSON sql.NullString
			parentCF sql.NullInt64
			multiple int
		)
		if err := rows.Scan(&m.JiraFieldID, &m.RedmineCustomFieldID, &m.FieldFormat, &multiple, &enumJSON, &cascJSON, &parentCF); err != nil {
			return nil, fmt.Errorf("scan custom field mapping: %w", err)
		}
		m.IsMultiple = multiple != 0
		m.ParentRedmineCustomFieldID = int64Ptr(parentCF)

		if enumJSON.Valid && enumJSON.String != "" {
			raw := map[string]string{}
			if err := json.Unmarshal([]byte(enumJSON.String), &raw); err != nil {
				return nil, fmt.Errorf("field %s: parse enumeration mapping: %w", m.JiraFieldID, err)
			}
			m.Enumeration = make(map[string]string, len(raw))
			for k, v := range raw {
				m.Enumeration[strings.ToLower(strings.TrimSpace(k))] = v
			}
		}
		if cascJSON.Valid && cascJSON.String != "" {
			if err := json.Unmarshal([]byte(cascJSON.String), &m.CascadingOptions); err != nil {
				return nil, fmt.Errorf("field %s: parse cascading options: %w", m.JiraFieldID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResolvedParents maps every Jira issue id that already has a Redmine issue
// onto that Redmine id, for parent wiring of proposals.
func (s *Store) ResolvedParents(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT jira_issue_id, redmine_issue_id
FROM migration_mapping_issues
WHERE redmine_issue_id IS NOT NULL
  AND migration_status IN ('MATCH_FOUND', 'CREATION_SUCCESS')`)
	if err != nil {
		return nil, fmt.Errorf("load resolved parents: %w", err)
	}
	defer rows.Close()

	out := map[int64]int64{}
	for rows.Next() {
		var jiraID, redmineID int64
		if err := rows.Scan(&jiraID, &redmineID); err != nil {
			return nil, fmt.Errorf("scan resolved parent: %w", err)
		}
		out[jiraID] = redmineID
	}
	return out, rows.Err()
}
