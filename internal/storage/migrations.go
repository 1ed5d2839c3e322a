package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Columns added after the tables first shipped. Sibling tools may have
// created the tables from an older schema; each add is guarded so reruns and
// mixed-version fleets converge.
var columnMigrations = []struct {
	table  string
	column string
	ddl    string
}{
	{"staging_jira_issues", "status_category",
		"ALTER TABLE staging_jira_issues ADD COLUMN status_category VARCHAR(32) NOT NULL DEFAULT '' AFTER status_id"},
	{"staging_jira_issues", "fix_versions",
		"ALTER TABLE staging_jira_issues ADD COLUMN fix_versions TEXT NULL AFTER labels"},
	{"staging_jira_issues", "components",
		"ALTER TABLE staging_jira_issues ADD COLUMN components TEXT NULL AFTER fix_versions"},
	{"migration_mapping_custom_fields", "cascading_option_mapping",
		"ALTER TABLE migration_mapping_custom_fields ADD COLUMN cascading_option_mapping TEXT NULL AFTER mapping_parent_custom_field_id"},
	{"migration_mapping_issues", "automation_hash",
		"ALTER TABLE migration_mapping_issues ADD COLUMN automation_hash VARCHAR(64) NOT NULL DEFAULT '' AFTER proposed_custom_field_payload"},
}

func (s *Store) applyMigrations(ctx context.Context) error {
	for _, m := range columnMigrations {
		ok, err := s.columnExists(ctx, m.table, m.column)
		if err != nil {
			return fmt.Errorf("check column %s.%s: %w", m.table, m.column, err)
		}
		if ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
			// A concurrent sibling tool may have added it between the
			// check and the ALTER.
			if strings.Contains(err.Error(), "Duplicate column") {
				continue
			}
			return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	// Table and column names come from the fixed migration list above,
	// never from input.
	query := fmt.Sprintf("SHOW COLUMNS FROM `%s` LIKE ?", table)
	var (
		field      string
		colType    string
		null       sql.NullString
		key        sql.NullString
		defaultVal sql.NullString
		extra      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, column).Scan(&field, &colType, &null, &key, &defaultVal, &extra)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
