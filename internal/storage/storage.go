// Package storage is the MySQL staging store shared by every migration
// phase. It owns the staging_jira_* snapshot tables, the migration_mapping_*
// state machine tables, and the prepared statements of the hot paths. One
// run holds one connection; there is no cross-statement transaction, the
// mapping rows themselves are the durable state.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"jira2redmine/internal/config"
)

// ErrNoMapping is returned by lookups that require an existing mapping row.
var ErrNoMapping = errors.New("storage: no mapping row")

// Store wraps the staging database connection and its prepared statements.
type Store struct {
	db *sql.DB

	upsertIssue      *sql.Stmt
	upsertLabel      *sql.Stmt
	upsertLink       *sql.Stmt
	upsertAttachment *sql.Stmt
	deleteSamples    *sql.Stmt
	deleteKV         *sql.Stmt
	insertSample     *sql.Stmt
	insertKV         *sql.Stmt
	updateProposal   *sql.Stmt
}

// Open connects, ensures the schema, applies migrations, and prepares the
// hot-path statements. Any failure here is fatal to the run.
func Open(ctx context.Context, cfg config.Database) (*Store, error) {
	dsn := DSN(cfg)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The run is single-threaded; one connection keeps the prepared
	// statements bound and the server session predictable.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.applyMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepare(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// DSN formats the go-sql-driver connection string from the config parts.
// Timestamps are stored and compared in UTC throughout.
func DSN(cfg config.Database) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range cfg.Params {
		mc.Params[k] = v
	}
	return mc.FormatDSN()
}

func (s *Store) prepare(ctx context.Context) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.upsertIssue, upsertIssueSQL},
		{&s.upsertLabel, upsertLabelSQL},
		{&s.upsertLink, upsertLinkSQL},
		{&s.upsertAttachment, upsertAttachmentSQL},
		{&s.deleteSamples, deleteSamplesSQL},
		{&s.deleteKV, deleteKVSQL},
		{&s.insertSample, insertSampleSQL},
		{&s.insertKV, insertKVSQL},
		{&s.updateProposal, updateProposalSQL},
	}
	for _, st := range stmts {
		prepared, err := s.db.PrepareContext(ctx, st.query)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return nil
}

// Close releases the prepared statements and the connection pool.
func (s *Store) Close() error {
	for _, st := range []*sql.Stmt{
		s.upsertIssue, s.upsertLabel, s.upsertLink, s.upsertAttachment,
		s.deleteSamples, s.deleteKV, s.insertSample, s.insertKV,
		s.updateProposal,
	} {
		if st != nil {
			st.Close()
		}
	}
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// timeFormat is the UTC storage format of staged timestamps.
const timeFormat = "2006-01-02 15:04:05"

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format("2006-01-02"), Valid: true}
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStrPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func datePtr(v sql.NullTime) *string {
	if !v.Valid {
		return nil
	}
	s := v.Time.Format("2006-01-02")
	return &s
}
