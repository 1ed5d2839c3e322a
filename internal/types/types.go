// Package types defines the core data structures shared by the migration phases.
package types

import (
	"encoding/json"
	"time"
)

// MigrationStatus tracks a row through the extract -> transform -> push
// lifecycle. Issue mapping rows and attachment mapping rows share the same
// column type; the attachment-only values never appear on issue rows.
type MigrationStatus string

// Issue mapping statuses.
const (
	StatusPendingAnalysis    MigrationStatus = "PENDING_ANALYSIS"
	StatusReadyForCreation   MigrationStatus = "READY_FOR_CREATION"
	StatusMatchFound         MigrationStatus = "MATCH_FOUND"
	StatusManualIntervention MigrationStatus = "MANUAL_INTERVENTION_REQUIRED"
	StatusIgnored            MigrationStatus = "IGNORED"
	StatusCreationSuccess    MigrationStatus = "CREATION_SUCCESS"
	StatusCreationFailed     MigrationStatus = "CREATION_FAILED"
)

// Attachment mapping statuses.
const (
	StatusPendingDownload    MigrationStatus = "PENDING_DOWNLOAD"
	StatusPendingUpload      MigrationStatus = "PENDING_UPLOAD"
	StatusPendingAssociation MigrationStatus = "PENDING_ASSOCIATION"
	StatusSuccess            MigrationStatus = "SUCCESS"
	StatusFailed             MigrationStatus = "FAILED"
)

// IsValid checks the status against the known issue and attachment values.
func (s MigrationStatus) IsValid() bool {
	switch s {
	case StatusPendingAnalysis, StatusReadyForCreation, StatusMatchFound,
		StatusManualIntervention, StatusIgnored, StatusCreationSuccess, StatusCreationFailed,
		StatusPendingDownload, StatusPendingUpload, StatusPendingAssociation,
		StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Transformable reports whether the transformer may rewrite a mapping row in
// this status. Terminal creation states and rows an operator parked elsewhere
// are never touched.
func (s MigrationStatus) Transformable() bool {
	switch s {
	case StatusPendingAnalysis, StatusReadyForCreation, StatusMatchFound, StatusCreationFailed:
		return true
	}
	return false
}

// Resolved reports whether the status means a Redmine issue already exists
// for the row, either matched by an operator tool or created by the pusher.
func (s MigrationStatus) Resolved() bool {
	return s == StatusMatchFound || s == StatusCreationSuccess
}

// AssociationIssue marks attachments that belong to the issue itself; journal
// attachments are handled by the journal migration tool.
const (
	AssociationIssue   = "ISSUE"
	AssociationJournal = "JOURNAL"
)

// JiraIssue is one staged issue row, keyed by the numeric Jira issue id.
// Timestamps are normalized to UTC on extraction.
type JiraIssue struct {
	ID                int64
	Key               string
	ProjectID         int64
	ProjectKey        string
	IssueTypeID       string
	StatusID          string
	StatusCategory    string // Jira statusCategory key: new, indeterminate, done
	PriorityID        string
	ReporterAccountID string
	AssigneeAccountID string
	ParentID          *int64
	Summary           string
	DescriptionADF    json.RawMessage // fields.description as returned by Jira
	DescriptionHTML   string          // renderedFields.description, empty when absent
	LabelsJSON        string          // JSON array of label strings, empty when none
	FixVersionsJSON   string          // JSON array of fix version ids, empty when none
	ComponentsJSON    string          // JSON array of component ids, empty when none
	CreatedAt         *time.Time
	UpdatedAt         *time.Time
	ResolvedAt        *time.Time
	DueDate           *time.Time
	OriginalEstimate  *int64 // seconds
	RemainingEstimate *int64 // seconds
	TimeSpent         *int64 // seconds
	RawPayload        json.RawMessage
	ExtractedAt       time.Time
}

// JiraAttachment is one staged attachment metadata row. The bytes themselves
// are moved by the attachment tool; staging keeps enough to build unique
// filenames and validate link-rewrite targets.
type JiraAttachment struct {
	ID         int64
	IssueID    int64
	Filename   string
	SizeBytes  int64
	MimeType   string
	ContentURL string
	CreatedAt  *time.Time
}

// JiraIssueLink is a canonical outward-direction link: SourceID is the issue
// the link points away from. Jira reports every link twice (inward and
// outward); extraction collapses the pair onto the shared link id.
type JiraIssueLink struct {
	LinkID       int64
	LinkTypeID   string
	LinkTypeName string
	SourceID     int64
	TargetID     int64
}

// JiraObjectSample is one raw array element captured from a configured
// object-schema field, in element order.
type JiraObjectSample struct {
	FieldID  string
	IssueKey string
	Ordinal  int
	Raw      json.RawMessage
}

// JiraObjectKV is one flattened leaf of an object sample. Path uses dotted
// segments with [i] for nested arrays; Ordinal is the top-level element index.
type JiraObjectKV struct {
	FieldID  string
	IssueKey string
	Path     string
	Ordinal  int
	Value    string
}

// IssueMapping is the migration control row for one staged issue. The
// redmine_* and proposed_* columns are automation-managed and covered by
// AutomationHash; MigrationNotes is operator-facing and excluded from it.
type IssueMapping struct {
	MappingID    int64
	JiraIssueID  int64
	JiraIssueKey string

	// Denormalized Jira attribute ids, copied when the row is first created.
	JiraProjectID         int64
	JiraIssueTypeID       string
	JiraStatusID          string
	JiraPriorityID        string
	JiraReporterAccountID string
	JiraAssigneeAccountID string
	JiraParentID          *int64

	RedmineIssueID       *int64
	RedmineProjectID     *int64
	RedmineTrackerID     *int64
	RedmineStatusID      *int64
	RedminePriorityID    *int64
	RedmineAuthorID      *int64
	RedmineAssigneeID    *int64
	RedmineParentIssueID *int64

	ProposedSubject            string
	ProposedDescription        *string
	ProposedStartDate          *string // YYYY-MM-DD
	ProposedDueDate            *string // YYYY-MM-DD
	ProposedDoneRatio          *int
	ProposedEstimatedHours     *float64
	ProposedIsPrivate          bool
	ProposedCustomFieldPayload *string // JSON array of {id, value}

	AutomationHash  string
	MigrationStatus MigrationStatus
	MigrationNotes  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttachmentMapping mirrors the attachment tool's control rows. This tool
// only reads them (push readiness, link rewriting) and marks them SUCCESS
// after the owning issue is created.
type AttachmentMapping struct {
	JiraAttachmentID   int64
	JiraIssueID        int64
	Filename           string
	ContentType        string
	FileSize           int64
	RedmineUploadToken string
	SharePointURL      string
	AssociationTarget  string
	MigrationStatus    MigrationStatus
	MigrationNotes     *string
}

// ProjectMapping joins a Jira project to its Redmine target. The extractor
// stamps IssuesExtractedAt after a full keyset sweep.
type ProjectMapping struct {
	JiraProjectID     int64
	JiraProjectKey    string
	RedmineProjectID  int64
	IssuesExtractedAt *time.Time
}

// CustomFieldMapping maps one Jira field onto a Redmine custom field.
// Enumeration keys are lowercased Jira values, labels, and option ids.
// Cascading child rows reference a parent row in the mapping table; the
// loader resolves that reference into ParentRedmineCustomFieldID and attaches
// the option table that maps a Jira child option onto parent and child labels.
type CustomFieldMapping struct {
	JiraFieldID                string
	RedmineCustomFieldID       int64
	FieldFormat                string
	IsMultiple                 bool
	Enumeration                map[string]string
	ParentRedmineCustomFieldID *int64
	CascadingOptions           []CascadingOption
}

// CascadingOption resolves one Jira cascading child option.
type CascadingOption struct {
	ChildOptionID string `json:"child_option_id"`
	ParentLabel   string `json:"parent_label"`
	ChildLabel    string `json:"child_label"`
}

// Cascading reports whether the mapping is the child half of a cascading pair.
func (m *CustomFieldMapping) Cascading() bool {
	return m.ParentRedmineCustomFieldID != nil
}

// CustomFieldValue is one entry of the proposed custom field payload.
// Value is a string for single-value fields and a []string for multi-value.
type CustomFieldValue struct {
	ID    int64 `json:"id"`
	Value any   `json:"value"`
}
