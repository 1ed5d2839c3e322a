package attachments

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// Markdown links and images, with an optional quoted title. The target
	// group deliberately excludes whitespace and quotes.
	mdLink = regexp.MustCompile(`(!?)\[([^\]]*)\]\(\s*([^)\s"]+)(?:\s+"([^"]*)")?\s*\)`)

	// Absolute and protocol-relative URLs in running text.
	bareURL = regexp.MustCompile(`(?:https?:)?//[^\s<>()\[\]]+`)
)

// Rewrite replaces Jira attachment references in a Markdown description with
// each attachment's SharePoint URL (when the file lives there) or unique
// filename, and returns the number of rewritten references. It runs a DOM
// pass first when the text still carries HTML anchor or image tags, then the
// Markdown link pass, then a bare-URL pass.
func Rewrite(description string, m *Matcher, ix *Index) (string, int) {
	if ix.Empty() || description == "" {
		return description, 0
	}

	out := description
	n := 0

	if strings.Contains(out, "<a ") || strings.Contains(out, "<img") {
		out = rewriteDOM(out, m, ix, &n)
	}

	out = mdLink.ReplaceAllStringFunc(out, func(match string) string {
		g := mdLink.FindStringSubmatch(match)
		target, ok := resolveTarget(g[3], m, ix)
		if !ok {
			return match
		}
		n++
		// The quoted title is dropped along with the dead URL.
		return g[1] + "[" + g[2] + "](" + target + ")"
	})

	out = bareURL.ReplaceAllStringFunc(out, func(match string) string {
		target, ok := resolveTarget(match, m, ix)
		if !ok {
			return match
		}
		n++
		return target
	})

	return out, n
}

// RewriteHTML runs only the DOM pass over an HTML fragment, for callers that
// rewrite attachment references before HTML-to-Markdown conversion.
func RewriteHTML(html string, m *Matcher, ix *Index) (string, int) {
	if ix.Empty() || html == "" {
		return html, 0
	}
	n := 0
	out := rewriteDOM(html, m, ix, &n)
	return out, n
}

// StripTitles removes quoted link titles from links that already point at a
// unique attachment filename: [label](42__f.pdf "f.pdf") -> [label](42__f.pdf).
func StripTitles(description string, ix *Index) string {
	if ix.Empty() {
		return description
	}
	for _, r := range ix.Rows() {
		unique := UniqueFilename(r.JiraAttachmentID, r.Filename)
		re := regexp.MustCompile(`\]\(` + regexp.QuoteMeta(unique) + `\s+"[^"]*"\)`)
		description = re.ReplaceAllString(description, "]("+unique+")")
	}
	return description
}

// resolveTarget maps a link target onto its rewrite form (SharePoint URL if
// present, else unique filename): first the URL patterns, then the
// bare-numeric rule gated on the per-issue index.
func resolveTarget(target string, m *Matcher, ix *Index) (string, bool) {
	if id, ok := m.MatchURL(target); ok {
		return ix.Target(id)
	}
	if id, ok := BareID(target); ok {
		return ix.Target(id)
	}
	return "", false
}

func rewriteDOM(input string, m *Matcher, ix *Index, n *int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		return input
	}
	changed := false

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, ok := resolveTarget(href, m, ix)
		if !ok {
			// Confluence-style anchors carry the attachment id out of band.
			if rid, has := s.Attr("data-linked-resource-id"); has {
				if id, numeric := BareID(rid); numeric {
					target, ok = ix.Target(id)
				}
			}
		}
		if ok {
			s.SetAttr("href", target)
			if strings.TrimSpace(s.Text()) == "" {
				s.SetText(target)
			}
			stripAttrs(s, []string{"title", "data-linked-resource-id"}, "file-preview-")
			changed = true
			*n++
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if target, ok := resolveTarget(src, m, ix); ok {
			s.SetAttr("src", target)
			stripAttrs(s, []string{"title", "alt"}, "data-attachment-", "data-media-services-")
			changed = true
			*n++
		}
	})

	if !changed {
		return input
	}
	html, err := doc.Find("body").Html()
	if err != nil {
		return input
	}
	return html
}

// stripAttrs removes the named attributes plus any whose name carries one of
// the prefixes.
func stripAttrs(s *goquery.Selection, names []string, prefixes ...string) {
	if len(s.Nodes) == 0 {
		return
	}
	drop := append([]string(nil), names...)
	for _, a := range s.Nodes[0].Attr {
		for _, p := range prefixes {
			if strings.HasPrefix(a.Key, p) {
				drop = append(drop, a.Key)
				break
			}
		}
	}
	for _, name := range drop {
		s.RemoveAttr(name)
	}
}
