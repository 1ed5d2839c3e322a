package attachments

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Path patterns, tried in order. The first hit wins, so the precise content
// and secure forms take precedence over the loose /attachment(s)/<id> form.
var pathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/rest/api/3/attachment/content/(\d+)(?:[/?#]|$)`),
	regexp.MustCompile(`/secure/attachment/(\d+)(?:[/?#]|/|$)`),
	regexp.MustCompile(`/attachments/(\d+)(?:[/?#]|$)`),
	regexp.MustCompile(`/attachment/(\d+)(?:[/?#]|$)`),
}

// Matcher recognizes the Jira attachment URL shapes for one instance:
// absolute URLs on the instance host, protocol-relative //host/... variants,
// and host-bare /secure/attachment/... paths.
type Matcher struct {
	base string // https://host, no trailing slash
	host string
}

// NewMatcher builds a matcher for the Jira base URL attachments point at.
func NewMatcher(jiraBaseURL string) *Matcher {
	base := strings.TrimSuffix(strings.TrimSpace(jiraBaseURL), "/")
	m := &Matcher{base: base}
	if u, err := url.Parse(base); err == nil {
		m.host = u.Host
	}
	return m
}

// MatchURL extracts the attachment id from a URL-shaped link target.
// Targets on foreign hosts never match.
func (m *Matcher) MatchURL(target string) (int64, bool) {
	path, ok := m.instancePath(target)
	if !ok {
		return 0, false
	}
	for _, re := range pathPatterns {
		if g := re.FindStringSubmatch(path); g != nil {
			id, err := strconv.ParseInt(g[1], 10, 64)
			if err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

// BareID recognizes the last-resort form: a link target that is nothing but
// a decimal attachment id. The caller must confirm the id against the
// per-issue index before rewriting.
func BareID(target string) (int64, bool) {
	if target == "" {
		return 0, false
	}
	for _, r := range target {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// instancePath reduces a target to its path when it belongs to the Jira
// instance: absolute on the configured base, protocol-relative on the same
// host, or already host-bare.
func (m *Matcher) instancePath(target string) (string, bool) {
	switch {
	case m.base != "" && strings.HasPrefix(target, m.base):
		return target[len(m.base):], true
	case m.host != "" && strings.HasPrefix(target, "//"+m.host):
		return target[len("//"+m.host):], true
	case strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//"):
		return target, true
	}
	return "", false
}
