package redmine

import (
	"bytes"
	"encoding/json"

	"jira2redmine/internal/types"
)

// CreateRequest is the body of POST issues.json.
type CreateRequest struct {
	Issue Issue `json:"issue"`
}

// Issue is the proposed Redmine issue. Optional fields are pointers so that
// absent values disappear from the JSON instead of arriving as zeroes.
// Parent linkage is deliberately absent: issue hierarchies are wired by a
// later step, never during creation.
type Issue struct {
	ProjectID      int64                    `json:"project_id"`
	TrackerID      int64                    `json:"tracker_id"`
	StatusID       int64                    `json:"status_id"`
	PriorityID     *int64                   `json:"priority_id,omitempty"`
	Subject        string                   `json:"subject"`
	Description    string                   `json:"description"`
	StartDate      *string                  `json:"start_date,omitempty"`
	DueDate        *string                  `json:"due_date,omitempty"`
	AssignedToID   *int64                   `json:"assigned_to_id,omitempty"`
	DoneRatio      *int                     `json:"done_ratio,omitempty"`
	EstimatedHours *float64                 `json:"estimated_hours,omitempty"`
	IsPrivate      int                      `json:"is_private,omitempty"`
	CustomFields   []types.CustomFieldValue `json:"custom_fields,omitempty"`
	Uploads        []Upload                 `json:"uploads,omitempty"`

	// Extended-API overrides, only honored by servers that pass the probe.
	AuthorID  *int64 `json:"author_id,omitempty"`
	CreatedOn string `json:"created_on,omitempty"`
	UpdatedOn string `json:"updated_on,omitempty"`
	ClosedOn  string `json:"closed_on,omitempty"`
}

// Upload associates a previously uploaded file with the new issue.
type Upload struct {
	Token       string `json:"token"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
	ContentType string `json:"content_type,omitempty"`
}

// Pretty renders the request for dry-run output: indented, without HTML
// escaping, so URLs and markup in descriptions stay readable.
func (r *CreateRequest) Pretty() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return err.Error()
	}
	return buf.String()
}
