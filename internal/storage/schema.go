package storage

import (
	"context"
	"fmt"
	"strings"
)

// The staging schema is shared with the sibling migration tools; every
// statement is idempotent so whichever tool runs first creates the tables.
// MySQL dialect: the ON UPDATE CURRENT_TIMESTAMP columns are part of the
// operator contract (row edits are visible by timestamp).
const schema = `
-- Jira snapshots

CREATE TABLE IF NOT EXISTS staging_jira_projects (
    id BIGINT NOT NULL PRIMARY KEY,
    project_key VARCHAR(64) NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    raw_payload MEDIUMTEXT NULL,
    extracted_at TIMESTAMP NULL DEFAULT NULL,
    UNIQUE KEY uq_staging_jira_projects_key (project_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS staging_jira_issues (
    id BIGINT NOT NULL PRIMARY KEY,
    issue_key VARCHAR(64) NOT NULL,
    project_id BIGINT NOT NULL,
    project_key VARCHAR(64) NOT NULL DEFAULT '',
    issue_type_id VARCHAR(32) NOT NULL DEFAULT '',
    status_id VARCHAR(32) NOT NULL DEFAULT '',
    status_category VARCHAR(32) NOT NULL DEFAULT '',
    priority_id VARCHAR(32) NOT NULL DEFAULT '',
    reporter_account_id VARCHAR(128) NOT NULL DEFAULT '',
    assignee_account_id VARCHAR(128) NOT NULL DEFAULT '',
    parent_issue_id BIGINT NULL,
    summary VARCHAR(255) NOT NULL,
    description_adf MEDIUMTEXT NULL,
    description_html MEDIUMTEXT NULL,
    labels TEXT NULL,
    fix_versions TEXT NULL,
    components TEXT NULL,
    due_date DATE NULL,
    time_original_estimate BIGINT NULL,
    time_remaining_estimate BIGINT NULL,
    time_spent BIGINT NULL,
    created_at DATETIME NULL,
    updated_at DATETIME NULL,
    resolved_at DATETIME NULL,
    raw_payload MEDIUMTEXT NULL,
    extracted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uq_staging_jira_issues_key (issue_key),
    KEY idx_staging_jira_issues_project (project_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS staging_jira_labels (
    name VARCHAR(255) NOT NULL PRIMARY KEY
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS staging_jira_issue_links (
    link_id BIGINT NOT NULL PRIMARY KEY,
    link_type_id VARCHAR(32) NOT NULL DEFAULT '',
    link_type_name VARCHAR(64) NOT NULL DEFAULT '',
    source_issue_id BIGINT NOT NULL,
    target_issue_id BIGINT NOT NULL,
    KEY idx_staging_jira_issue_links_source (source_issue_id),
    KEY idx_staging_jira_issue_links_target (target_issue_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS staging_jira_attachments (
    id BIGINT NOT NULL PRIMARY KEY,
    issue_id BIGINT NOT NULL,
    filename VARCHAR(512) NOT NULL,
    size_bytes BIGINT NOT NULL DEFAULT 0,
    mime_type VARCHAR(255) NOT NULL DEFAULT '',
    content_url TEXT NULL,
    created_at DATETIME NULL,
    KEY idx_staging_jira_attachments_issue (issue_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS staging_jira_object_samples (
    field_id VARCHAR(64) NOT NULL,
    issue_key VARCHAR(64) NOT NULL,
    ordinal INT NOT NULL,
    raw_value MEDIUMTEXT NULL,
    PRIMARY KEY (field_id, issue_key, ordinal)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS staging_jira_object_kv (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    field_id VARCHAR(64) NOT NULL,
    issue_key VARCHAR(64) NOT NULL,
    path VARCHAR(512) NOT NULL,
    ordinal INT NOT NULL,
    value TEXT NULL,
    KEY idx_staging_jira_object_kv_field (field_id, issue_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

-- Mapping state machines

CREATE TABLE IF NOT EXISTS migration_mapping_projects (
    jira_project_id BIGINT NOT NULL PRIMARY KEY,
    redmine_project_id BIGINT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    issues_extracted_at TIMESTAMP NULL DEFAULT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_trackers (
    jira_issue_type_id VARCHAR(32) NOT NULL PRIMARY KEY,
    redmine_tracker_id BIGINT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_statuses (
    jira_status_id VARCHAR(32) NOT NULL PRIMARY KEY,
    redmine_status_id BIGINT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_priorities (
    jira_priority_id VARCHAR(32) NOT NULL PRIMARY KEY,
    redmine_priority_id BIGINT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_users (
    jira_account_id VARCHAR(128) NOT NULL PRIMARY KEY,
    redmine_user_id BIGINT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_custom_fields (
    jira_field_id VARCHAR(64) NOT NULL PRIMARY KEY,
    redmine_custom_field_id BIGINT NULL,
    field_format VARCHAR(32) NOT NULL DEFAULT 'string',
    is_multiple TINYINT(1) NOT NULL DEFAULT 0,
    enumeration_mapping TEXT NULL,
    mapping_parent_custom_field_id VARCHAR(64) NULL,
    cascading_option_mapping TEXT NULL,
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_attachments (
    jira_attachment_id BIGINT NOT NULL PRIMARY KEY,
    jira_issue_id BIGINT NOT NULL,
    filename VARCHAR(512) NOT NULL DEFAULT '',
    content_type VARCHAR(255) NOT NULL DEFAULT '',
    file_size BIGINT NOT NULL DEFAULT 0,
    redmine_upload_token VARCHAR(255) NULL,
    sharepoint_url TEXT NULL,
    association_target VARCHAR(16) NOT NULL DEFAULT 'ISSUE',
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_DOWNLOAD',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_migration_mapping_attachments_issue (jira_issue_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS migration_mapping_issues (
    mapping_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    jira_issue_id BIGINT NOT NULL,
    jira_issue_key VARCHAR(64) NOT NULL,
    jira_project_id BIGINT NOT NULL DEFAULT 0,
    jira_issue_type_id VARCHAR(32) NOT NULL DEFAULT '',
    jira_status_id VARCHAR(32) NOT NULL DEFAULT '',
    jira_priority_id VARCHAR(32) NOT NULL DEFAULT '',
    jira_reporter_account_id VARCHAR(128) NOT NULL DEFAULT '',
    jira_assignee_account_id VARCHAR(128) NOT NULL DEFAULT '',
    jira_parent_issue_id BIGINT NULL,
    redmine_issue_id BIGINT NULL,
    redmine_project_id BIGINT NULL,
    redmine_tracker_id BIGINT NULL,
    redmine_status_id BIGINT NULL,
    redmine_priority_id BIGINT NULL,
    redmine_author_id BIGINT NULL,
    redmine_assignee_id BIGINT NULL,
    redmine_parent_issue_id BIGINT NULL,
    proposed_subject VARCHAR(255) NOT NULL DEFAULT '',
    proposed_description MEDIUMTEXT NULL,
    proposed_start_date DATE NULL,
    proposed_due_date DATE NULL,
    proposed_done_ratio TINYINT NULL,
    proposed_estimated_hours DECIMAL(10,2) NULL,
    proposed_is_private TINYINT(1) NOT NULL DEFAULT 0,
    proposed_custom_field_payload TEXT NULL,
    automation_hash VARCHAR(64) NOT NULL DEFAULT '',
    migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
    migration_notes TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uq_migration_mapping_issues_id (jira_issue_id),
    UNIQUE KEY uq_migration_mapping_issues_key (jira_issue_key),
    KEY idx_migration_mapping_issues_status (migration_status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// ensureSchema executes every statement of the schema constant.
func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
