package jira

import (
	"fmt"
	"regexp"
	"strings"
)

var trailingOrderBy = regexp.MustCompile(`(?i)\s+ORDER\s+BY\s+.*$`)

// ProjectJQL builds the keyset-paginated extraction query for one project.
// The configured extra filter is ANDed in with any trailing ORDER BY clause
// stripped, because the query must stay ordered by ascending numeric id for
// the id > cursor to make progress. afterID <= 0 means the first page.
func ProjectJQL(projectKey, extraFilter string, afterID int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "project = %s", quoteJQL(projectKey))

	if f := strings.TrimSpace(trailingOrderBy.ReplaceAllString(extraFilter, "")); f != "" {
		fmt.Fprintf(&b, " AND (%s)", f)
	}
	if afterID > 0 {
		fmt.Fprintf(&b, " AND id > %d", afterID)
	}
	b.WriteString(" ORDER BY id ASC")
	return b.String()
}

// quoteJQL quotes a string literal for JQL, escaping backslashes and quotes.
func quoteJQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
