package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"jira2redmine/internal/attachments"
	"jira2redmine/internal/logging"
	"jira2redmine/internal/redmine"
	"jira2redmine/internal/storage"
	"jira2redmine/internal/telemetry"
	"jira2redmine/internal/types"
)

// ErrProbeFailed aborts the push phase: the extended API was requested but the
// server did not acknowledge it, and pushing anyway would silently drop the
// author and timestamp overrides.
var ErrProbeFailed = errors.New("extended api probe failed")

// extendedTimeFormat is the timestamp form the extended API accepts.
const extendedTimeFormat = "2006-01-02T15:04:05Z"

// PushStore is the mapping surface the pusher reads and writes.
type PushStore interface {
	IssueJoins(ctx context.Context, statuses ...types.MigrationStatus) ([]storage.IssueJoin, error)
	AttachmentMappings(ctx context.Context, jiraIssueID int64) ([]types.AttachmentMapping, error)
	PendingAttachmentCounts(ctx context.Context, jiraIssueID int64) (pendingTransfer, pendingAssociation int, err error)
	UpdateMappingStatus(ctx context.Context, mappingID int64, status types.MigrationStatus, notes string) error
	RecordCreation(ctx context.Context, mappingID, redmineIssueID int64) error
	MarkAttachmentOutcome(ctx context.Context, jiraAttachmentID int64, status types.MigrationStatus, note string) error
}

// Creator is the Redmine surface the pusher needs.
type Creator interface {
	CreateIssue(ctx context.Context, req *redmine.CreateRequest) (int64, error)
	Probe(ctx context.Context) (bool, error)
	IssuesPath() string
}

// Pusher creates Redmine issues from READY_FOR_CREATION rows. Each creation is
// attempted at most once per run; the durable row status decides whether a
// later run retries.
type Pusher struct {
	Store   PushStore
	Redmine Creator
	Log     *logging.Logger
	Metrics *telemetry.PhaseMetrics

	DryRun         bool
	ConfirmPush    bool
	Extended       bool
	SharePointNote string
}

// PushSummary counts one push run.
type PushSummary struct {
	Created   int
	Failed    int
	Blocked   int
	DryRun    int
	Previewed int
}

// Buckets renders the summary for logging.
func (s *PushSummary) Buckets() []logging.Bucket {
	return []logging.Bucket{
		{Name: "created", Count: s.Created},
		{Name: "failed", Count: s.Failed},
		{Name: "blocked", Count: s.Blocked},
		{Name: "dry_run", Count: s.DryRun},
		{Name: "previewed", Count: s.Previewed},
	}
}

// Run pushes every ready row. Database failures and a failed extended-API
// probe abort the phase; HTTP failures of individual creations are recorded
// on the row and the run continues.
func (p *Pusher) Run(ctx context.Context) (*PushSummary, error) {
	sum := &PushSummary{}

	candidates, err := p.Store.IssueJoins(ctx, types.StatusReadyForCreation)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return sum, nil
	}

	// Probe before the first creation, not per issue. Dry runs skip it so an
	// operator can inspect extended payloads without a live plugin.
	if p.Extended && !p.DryRun && p.ConfirmPush {
		ok, err := p.Redmine.Probe(ctx)
		if err != nil {
			return sum, fmt.Errorf("%w: %v", ErrProbeFailed, err)
		}
		if !ok {
			return sum, fmt.Errorf("%w: server did not echo %s", ErrProbeFailed, redmine.ExtendedAPIHeader)
		}
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := p.pushOne(ctx, &candidates[i], sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (p *Pusher) pushOne(ctx context.Context, row *storage.IssueJoin, sum *PushSummary) error {
	m := &row.Mapping

	pendingTransfer, pendingAssociation, err := p.Store.PendingAttachmentCounts(ctx, m.JiraIssueID)
	if err != nil {
		return err
	}
	if pendingTransfer > 0 {
		return p.block(ctx, m, sum,
			fmt.Sprintf("Blocked: %d attachment(s) still pending download/upload", pendingTransfer))
	}

	atts, err := p.Store.AttachmentMappings(ctx, m.JiraIssueID)
	if err != nil {
		return err
	}
	uploads, sharepoint := classifyAttachments(atts, p.Log, m.JiraIssueKey)
	if n := pendingAssociation - len(uploads) - len(sharepoint); n != 0 {
		return p.block(ctx, m, sum,
			fmt.Sprintf("Blocked: %d attachment(s) pending association without upload token or SharePoint URL", n))
	}

	if m.RedmineProjectID == nil || m.RedmineTrackerID == nil || m.RedmineStatusID == nil {
		return p.block(ctx, m, sum, "Missing required proposed attributes (project/tracker/status)")
	}

	req, err := p.buildRequest(row, uploads, sharepoint)
	if err != nil {
		return p.block(ctx, m, sum, err.Error())
	}

	switch {
	case p.DryRun:
		p.Log.Tag("dry-run", "%s: POST %s\n%s", m.JiraIssueKey, p.Redmine.IssuesPath(), req.Pretty())
		sum.DryRun++
		return nil
	case !p.ConfirmPush:
		p.Log.Tag("preview", "%s -> %q (use --confirm-push to create)", m.JiraIssueKey, req.Issue.Subject)
		sum.Previewed++
		return nil
	}

	id, err := p.Redmine.CreateIssue(ctx, req)
	if err != nil {
		note := creationFailureNote(err)
		if err := p.Store.UpdateMappingStatus(ctx, m.MappingID, types.StatusCreationFailed, note); err != nil {
			return err
		}
		p.Log.Error("%s: creation failed: %s", m.JiraIssueKey, note)
		if p.Metrics != nil {
			p.Metrics.ItemError(ctx, "push")
		}
		sum.Failed++
		return nil
	}

	if err := p.Store.RecordCreation(ctx, m.MappingID, id); err != nil {
		return err
	}
	for _, a := range uploads {
		if err := p.Store.MarkAttachmentOutcome(ctx, a.JiraAttachmentID, types.StatusSuccess, ""); err != nil {
			return err
		}
	}
	for _, a := range sharepoint {
		note := "Attachment stored on SharePoint: " + a.SharePointURL
		if err := p.Store.MarkAttachmentOutcome(ctx, a.JiraAttachmentID, types.StatusSuccess, note); err != nil {
			return err
		}
	}

	p.Log.Tag("created", "%s -> redmine #%d", m.JiraIssueKey, id)
	if p.Metrics != nil {
		p.Metrics.Pushed(ctx)
	}
	sum.Created++
	return nil
}

func (p *Pusher) block(ctx context.Context, m *types.IssueMapping, sum *PushSummary, note string) error {
	if err := p.Store.UpdateMappingStatus(ctx, m.MappingID, types.StatusManualIntervention, note); err != nil {
		return err
	}
	p.Log.Tag("blocked", "%s: %s", m.JiraIssueKey, note)
	sum.Blocked++
	return nil
}

// classifyAttachments splits an issue's usable association-pending attachments
// into uploads and SharePoint links. A row carrying both wins SharePoint; the
// upload token is abandoned with a warning. Rows in any other status were
// already settled and are skipped; rows with neither token nor URL fall out
// and surface through the pending-association count mismatch.
func classifyAttachments(atts []types.AttachmentMapping, log *logging.Logger, issueKey string) (uploads, sharepoint []types.AttachmentMapping) {
	for _, a := range atts {
		if a.MigrationStatus != types.StatusPendingAssociation {
			continue
		}
		switch {
		case a.SharePointURL != "":
			if a.RedmineUploadToken != "" {
				log.Warn("%s: attachment %d has both upload token and SharePoint URL, linking SharePoint", issueKey, a.JiraAttachmentID)
			}
			sharepoint = append(sharepoint, a)
		case a.RedmineUploadToken != "":
			uploads = append(uploads, a)
		}
	}
	return uploads, sharepoint
}

func (p *Pusher) buildRequest(row *storage.IssueJoin, uploads, sharepoint []types.AttachmentMapping) (*redmine.CreateRequest, error) {
	m := &row.Mapping

	description := deref(m.ProposedDescription)
	if len(sharepoint) > 0 {
		rows := make([]*types.AttachmentMapping, len(sharepoint))
		for i := range sharepoint {
			rows[i] = &sharepoint[i]
		}
		description += attachments.SharePointBlock(description, rows, p.SharePointNote)
	}

	issue := redmine.Issue{
		ProjectID:      *m.RedmineProjectID,
		TrackerID:      *m.RedmineTrackerID,
		StatusID:       *m.RedmineStatusID,
		PriorityID:     m.RedminePriorityID,
		Subject:        m.ProposedSubject,
		Description:    description,
		StartDate:      m.ProposedStartDate,
		DueDate:        m.ProposedDueDate,
		AssignedToID:   m.RedmineAssigneeID,
		DoneRatio:      m.ProposedDoneRatio,
		EstimatedHours: m.ProposedEstimatedHours,
	}
	if m.ProposedIsPrivate {
		issue.IsPrivate = 1
	}

	if m.ProposedCustomFieldPayload != nil {
		var fields []types.CustomFieldValue
		if err := json.Unmarshal([]byte(*m.ProposedCustomFieldPayload), &fields); err != nil {
			return nil, fmt.Errorf("Invalid stored custom field payload: %v", err)
		}
		issue.CustomFields = fields
	}

	for _, a := range uploads {
		issue.Uploads = append(issue.Uploads, redmine.Upload{
			Token:       a.RedmineUploadToken,
			Filename:    attachments.UniqueFilename(a.JiraAttachmentID, a.Filename),
			Description: a.Filename,
			ContentType: a.ContentType,
		})
	}

	if p.Extended {
		issue.AuthorID = m.RedmineAuthorID
		if created := row.Issue.CreatedAt; created != nil {
			issue.CreatedOn = created.UTC().Format(extendedTimeFormat)
		}
		if updated := row.Issue.UpdatedAt; updated != nil {
			issue.UpdatedOn = updated.UTC().Format(extendedTimeFormat)
		}
		if resolved := row.Issue.ResolvedAt; resolved != nil {
			issue.ClosedOn = resolved.UTC().Format(extendedTimeFormat)
		}
	}

	return &redmine.CreateRequest{Issue: issue}, nil
}

// creationFailureNote renders a persisted failure note: "HTTP <code>: <body>"
// for API rejections, the error text otherwise, both truncated to fit the
// notes column.
func creationFailureNote(err error) string {
	var apiErr *redmine.APIError
	if errors.As(err, &apiErr) {
		body := strings.TrimSpace(apiErr.Body)
		return truncateNote(fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, body))
	}
	return truncateNote(err.Error())
}

func truncateNote(s string) string {
	const max = 300
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}
