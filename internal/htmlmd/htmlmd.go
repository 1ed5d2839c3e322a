// Package htmlmd converts Jira's server-rendered HTML descriptions to
// Markdown. The rendered HTML is the preferred description source because
// Jira has already resolved macros, user mentions, and smart links into
// plain markup; the ADF renderer is the fallback when no usable HTML exists.
package htmlmd

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"jira2redmine/internal/attachments"
	"jira2redmine/internal/text"
)

var (
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	xmlProlog   = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)
)

// Usable reports whether rendered HTML is worth converting. Jira renders
// unrepresentable content as an ADF-macro placeholder comment, and some
// descriptions are nothing but comments; both cases fall through to the ADF
// renderer.
func Usable(html string) bool {
	if strings.TrimSpace(html) == "" {
		return false
	}
	if strings.Contains(html, "ADF macro") {
		return false
	}
	return strings.TrimSpace(htmlComment.ReplaceAllString(html, "")) != ""
}

// Convert turns rendered HTML into GitHub-flavored Markdown. Attachment
// references are rewritten on the DOM before conversion, to the SharePoint
// URL or unique filename, so the converter emits live references instead of
// dead Jira URLs. The returned count is the number of rewritten references.
func Convert(html string, m *attachments.Matcher, ix *attachments.Index) (string, int, error) {
	html = xmlProlog.ReplaceAllString(html, "")

	rewritten := 0
	html, rewritten = attachments.RewriteHTML(html, m, ix)

	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	conv.Remove("script", "style")

	out, err := conv.ConvertString(html)
	if err != nil {
		return "", rewritten, fmt.Errorf("convert html: %w", err)
	}

	out = text.CollapseNewlines(strings.TrimSpace(out))
	return out, rewritten, nil
}
