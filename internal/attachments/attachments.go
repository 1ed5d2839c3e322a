// Package attachments rewrites Jira attachment references inside migrated
// descriptions and builds the SharePoint link block the pusher appends.
// After migration a description must reference attachments by their unique
// upload filename, never by a Jira URL that dies with the old instance.
package attachments

import (
	"fmt"
	"strings"

	"jira2redmine/internal/text"
	"jira2redmine/internal/types"
)

// UniqueFilename is the collision-free name an attachment is uploaded under:
// the Jira attachment id, a double underscore, then the sanitized original
// name.
func UniqueFilename(id int64, filename string) string {
	return fmt.Sprintf("%d__%s", id, text.SanitizeFilename(filename))
}

// Index is the per-issue attachment lookup used during link rewriting. The
// bare-numeric rewrite rule only fires for ids present here, which makes the
// index the materialized per-issue existence check.
type Index struct {
	byID  map[int64]*types.AttachmentMapping
	order []int64
}

// NewIndex builds an index over one issue's attachment rows.
func NewIndex(rows []types.AttachmentMapping) *Index {
	ix := &Index{byID: make(map[int64]*types.AttachmentMapping, len(rows))}
	for i := range rows {
		r := &rows[i]
		if _, dup := ix.byID[r.JiraAttachmentID]; dup {
			continue
		}
		ix.byID[r.JiraAttachmentID] = r
		ix.order = append(ix.order, r.JiraAttachmentID)
	}
	return ix
}

// Empty reports an index with no attachments.
func (ix *Index) Empty() bool {
	return ix == nil || len(ix.byID) == 0
}

// Lookup returns the row for a Jira attachment id.
func (ix *Index) Lookup(id int64) (*types.AttachmentMapping, bool) {
	if ix == nil {
		return nil, false
	}
	r, ok := ix.byID[id]
	return r, ok
}

// UniqueName returns the unique filename for a known attachment id.
func (ix *Index) UniqueName(id int64) (string, bool) {
	r, ok := ix.Lookup(id)
	if !ok {
		return "", false
	}
	return UniqueFilename(r.JiraAttachmentID, r.Filename), true
}

// Target returns the rewrite target for a known attachment id: the SharePoint
// URL when the file lives there, else the unique upload filename.
func (ix *Index) Target(id int64) (string, bool) {
	r, ok := ix.Lookup(id)
	if !ok {
		return "", false
	}
	if r.SharePointURL != "" {
		return r.SharePointURL, true
	}
	return UniqueFilename(r.JiraAttachmentID, r.Filename), true
}

// Rows returns the indexed rows in insertion order.
func (ix *Index) Rows() []*types.AttachmentMapping {
	if ix == nil {
		return nil
	}
	out := make([]*types.AttachmentMapping, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.byID[id])
	}
	return out
}

// SharePointBlock renders the link block for attachments that live on
// SharePoint instead of being uploaded. A link is skipped when the
// description already references the file: by URL, by unique filename, or by
// an explicit attachment:<unique> marker.
func SharePointBlock(description string, rows []*types.AttachmentMapping, note string) string {
	var lines []string
	for _, r := range rows {
		if r.SharePointURL == "" {
			continue
		}
		unique := UniqueFilename(r.JiraAttachmentID, r.Filename)
		if strings.Contains(description, r.SharePointURL) ||
			strings.Contains(description, unique) ||
			strings.Contains(description, "attachment:"+unique) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", unique, r.SharePointURL))
	}
	if len(lines) == 0 {
		return ""
	}
	block := "\n\n---\n**Attachments stored on SharePoint:**\n" + strings.Join(lines, "\n")
	if note != "" {
		block += "\n\n" + note
	}
	return block
}
