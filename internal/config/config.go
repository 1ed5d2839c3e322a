// Package config loads the migration configuration: one YAML file, overridden
// by J2R_* environment variables for the secrets, validated before any phase
// touches the network or the database.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultBatchSize is the Jira search page size when the config does not set
// one. Jira Cloud caps enhanced-search pages at 100.
const DefaultBatchSize = 100

// DefaultExtendedPrefix is the URL prefix of the Redmine Extended API plugin.
const DefaultExtendedPrefix = "extended_api"

// Config is the root configuration object.
type Config struct {
	Database    Database    `mapstructure:"database" validate:"required"`
	Jira        Jira        `mapstructure:"jira" validate:"required"`
	Redmine     Redmine     `mapstructure:"redmine" validate:"required"`
	Migration   Migration   `mapstructure:"migration"`
	Attachments Attachments `mapstructure:"attachments"`
	SharePoint  SharePoint  `mapstructure:"sharepoint"`
}

// Database holds the staging database connection parts.
type Database struct {
	Host     string            `mapstructure:"host" validate:"required"`
	Port     int               `mapstructure:"port" validate:"min=0,max=65535"`
	Name     string            `mapstructure:"name" validate:"required"`
	Username string            `mapstructure:"username" validate:"required"`
	Password string            `mapstructure:"password"`
	Params   map[string]string `mapstructure:"params"`
}

// Jira holds the Jira Cloud API access settings.
type Jira struct {
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
	Username string `mapstructure:"username"`
	APIToken string `mapstructure:"api_token" validate:"required"`
}

// Redmine holds the Redmine API access settings.
type Redmine struct {
	BaseURL     string      `mapstructure:"base_url" validate:"required,url"`
	APIKey      string      `mapstructure:"api_key" validate:"required"`
	ExtendedAPI ExtendedAPI `mapstructure:"extended_api"`
}

// ExtendedAPI configures the optional Redmine Extended API plugin routing.
// The --use-extended-api flag enables it for one run regardless of Enabled.
type ExtendedAPI struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// Migration groups the per-entity migration settings. Only the issue settings
// live in this tool; sibling tools read their own sections.
type Migration struct {
	Issues Issues `mapstructure:"issues"`
}

// Issues configures the issue pipeline.
type Issues struct {
	JQL       string `mapstructure:"jql"`
	BatchSize int    `mapstructure:"batch_size" validate:"min=0,max=1000"`

	DefaultProjectID  int64 `mapstructure:"default_redmine_project_id"`
	DefaultTrackerID  int64 `mapstructure:"default_redmine_tracker_id"`
	DefaultStatusID   int64 `mapstructure:"default_redmine_status_id"`
	DefaultPriorityID int64 `mapstructure:"default_redmine_priority_id"`
	DefaultAuthorID   int64 `mapstructure:"default_redmine_author_id"`
	DefaultAssigneeID int64 `mapstructure:"default_redmine_assignee_id"`
	DefaultIsPrivate  bool  `mapstructure:"default_is_private"`

	// Jira field ids whose object-schema values the extractor samples and
	// flattens into the KV staging tables.
	ObjectSchemaFields []string `mapstructure:"object_schema_fields"`
}

// Attachments configures attachment link recognition.
type Attachments struct {
	// JiraBaseURL is the host attachment URLs point at; defaults to
	// jira.base_url. Differs only when descriptions were authored against a
	// vanity domain.
	JiraBaseURL string `mapstructure:"jira_base_url"`
}

// SharePoint configures the SharePoint link block the pusher appends.
type SharePoint struct {
	LinkNote string `mapstructure:"link_note"`
}

// EffectiveBatchSize clamps the configured page size to Jira's 1..100 range.
func (i Issues) EffectiveBatchSize() int {
	switch {
	case i.BatchSize <= 0:
		return DefaultBatchSize
	case i.BatchSize > 100:
		return 100
	}
	return i.BatchSize
}

// Load reads, defaults, env-overrides, and validates the configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("J2R")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets that may come from the environment instead of the file.
	for _, key := range []string{
		"database.password",
		"jira.api_token",
		"redmine.api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("database.port", 3306)
	v.SetDefault("migration.issues.batch_size", DefaultBatchSize)
	v.SetDefault("redmine.extended_api.prefix", DefaultExtendedPrefix)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Attachments.JiraBaseURL == "" {
		cfg.Attachments.JiraBaseURL = cfg.Jira.BaseURL
	}
	if cfg.Redmine.ExtendedAPI.Prefix == "" {
		cfg.Redmine.ExtendedAPI.Prefix = DefaultExtendedPrefix
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
