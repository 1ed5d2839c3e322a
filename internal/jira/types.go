package jira

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// IssueFields is the typed subset of a Jira issue payload the migration
// reads. Everything else travels in the raw payload column.
type IssueFields struct {
	Summary        string            `json:"summary"`
	Description    json.RawMessage   `json:"description"` // ADF document or null
	Project        *ProjectField     `json:"project"`
	IssueType      *EntityField      `json:"issuetype"`
	Status         *StatusField      `json:"status"`
	Priority       *EntityField      `json:"priority"`
	Reporter       *UserField        `json:"reporter"`
	Assignee       *UserField        `json:"assignee"`
	Parent         *ParentField      `json:"parent"`
	Labels         []string          `json:"labels"`
	FixVersions    []EntityField     `json:"fixVersions"`
	Components     []EntityField     `json:"components"`
	Attachments    []AttachmentField `json:"attachment"`
	Created        string            `json:"created"`
	Updated        string            `json:"updated"`
	ResolutionDate string            `json:"resolutiondate"`
	DueDate        string            `json:"duedate"`
	Security       json.RawMessage   `json:"security"`

	// Time tracking, in seconds. Jira is inconsistent about the JSON type,
	// so these stay raw and go through ParseSeconds.
	OriginalEstimate  json.RawMessage `json:"timeoriginalestimate"`
	RemainingEstimate json.RawMessage `json:"timeestimate"`
	TimeSpent         json.RawMessage `json:"timespent"`

	IssueLinks []IssueLinkField `json:"issuelinks"`
}

// ParseFields decodes the typed field subset from a raw fields payload.
func ParseFields(raw json.RawMessage) (*IssueFields, error) {
	var f IssueFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse issue fields: %w", err)
	}
	return &f, nil
}

// RenderedFields is the typed subset of the renderedFields expansion.
type RenderedFields struct {
	Description string `json:"description"` // server-rendered HTML
}

// ParseRenderedFields decodes the rendered description. A missing or empty
// payload yields zero values, not an error.
func ParseRenderedFields(raw json.RawMessage) RenderedFields {
	var r RenderedFields
	if len(raw) == 0 {
		return r
	}
	_ = json.Unmarshal(raw, &r)
	return r
}

// EntityField is a generic id+name reference (issue type, priority, ...).
type EntityField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectField references the issue's project.
type ProjectField struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// NumericID parses the string project id.
func (p *ProjectField) NumericID() (int64, error) {
	n, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("project %s: non-numeric id %q", p.Key, p.ID)
	}
	return n, nil
}

// StatusField carries the status id plus its category, which drives the
// done-ratio rule.
type StatusField struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	StatusCategory struct {
		Key string `json:"key"` // new, indeterminate, done
	} `json:"statusCategory"`
}

// UserField references a Jira Cloud account.
type UserField struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// ParentField references the parent issue.
type ParentField struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// NumericID parses the string parent issue id.
func (p *ParentField) NumericID() (int64, error) {
	n, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parent %s: non-numeric id %q", p.Key, p.ID)
	}
	return n, nil
}

// AttachmentField is one entry of fields.attachment.
type AttachmentField struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"` // download URL
	Created  string `json:"created"`
}

// NumericID parses the string attachment id.
func (a *AttachmentField) NumericID() (int64, error) {
	n, err := strconv.ParseInt(a.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attachment %s: non-numeric id %q", a.Filename, a.ID)
	}
	return n, nil
}

// IssueLinkField is one entry of fields.issuelinks. Jira reports each link on
// both ends: the outward end carries outwardIssue, the inward end carries
// inwardIssue, and both share the link id.
type IssueLinkField struct {
	ID   string `json:"id"`
	Type struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"type"`
	OutwardIssue *LinkedIssue `json:"outwardIssue"`
	InwardIssue  *LinkedIssue `json:"inwardIssue"`
}

// LinkedIssue is the far end of an issue link.
type LinkedIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// NumericID parses the string linked issue id.
func (l *LinkedIssue) NumericID() (int64, error) {
	n, err := strconv.ParseInt(l.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("linked issue %s: non-numeric id %q", l.Key, l.ID)
	}
	return n, nil
}
