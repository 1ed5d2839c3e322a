package adf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"jira2redmine/internal/text"
)

// ToMarkdown renders an ADF document as GitHub-flavored Markdown. A null or
// empty document renders as "". The second return is false when raw is not an
// ADF document at all (callers then fall back to the plain-text path).
func ToMarkdown(raw []byte) (string, bool) {
	doc, ok := decode(raw)
	if !ok {
		return "", false
	}
	out := renderBlocks(doc.Content, 0)
	out = text.CollapseNewlines(strings.TrimSpace(out))
	return out, true
}

// renderBlocks renders a sequence of block nodes separated by blank lines.
func renderBlocks(nodes []node, depth int) string {
	if depth > maxDepth {
		return ""
	}
	var parts []string
	for i := range nodes {
		if s := renderBlock(&nodes[i], depth); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderBlock(n *node, depth int) string {
	if depth > maxDepth {
		return ""
	}
	switch n.Type {
	case "paragraph":
		return renderInline(n.Content, depth+1)
	case "heading":
		level := n.attrInt("level", 1)
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " " + renderInline(n.Content, depth+1)
	case "bulletList":
		return renderList(n, depth, false)
	case "orderedList":
		return renderList(n, depth, true)
	case "codeBlock":
		lang := n.attrString("language")
		return "```" + lang + "\n" + plainInline(n.Content, depth+1) + "\n```"
	case "blockquote":
		return quoteLines(renderBlocks(n.Content, depth+1), "")
	case "panel":
		title := panelTitle(n.attrString("panelType"))
		return quoteLines(renderBlocks(n.Content, depth+1), "**"+title+":**")
	case "rule":
		return "---"
	case "table":
		return renderTable(n, depth)
	case "mediaGroup", "mediaSingle":
		return renderBlocks(n.Content, depth+1)
	case "media":
		return mediaPlaceholder(n)
	case "expand", "nestedExpand":
		body := renderBlocks(n.Content, depth+1)
		if title := n.attrString("title"); title != "" {
			return "**" + title + "**\n\n" + body
		}
		return body
	default:
		// Unknown blocks surface their children rather than vanish.
		if len(n.Content) > 0 {
			return renderBlocks(n.Content, depth+1)
		}
		return renderInlineNode(n, depth)
	}
}

func renderList(n *node, depth int, ordered bool) string {
	var b strings.Builder
	idx := 0
	for i := range n.Content {
		item := &n.Content[i]
		if item.Type != "listItem" {
			continue
		}
		idx++
		marker := "- "
		if ordered {
			marker = strconv.Itoa(idx) + ". "
		}
		body := renderBlocks(item.Content, depth+1)
		lines := strings.Split(body, "\n")
		for j, line := range lines {
			if j == 0 {
				b.WriteString(marker + line)
			} else if line != "" {
				b.WriteString(strings.Repeat(" ", len(marker)) + line)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// quoteLines prefixes every line with "> ". A non-empty head becomes the
// first quoted line, which is how panels carry their type label.
func quoteLines(body, head string) string {
	var lines []string
	if head != "" {
		lines = append(lines, head)
	}
	if body != "" {
		lines = append(lines, strings.Split(body, "\n")...)
	}
	for i, line := range lines {
		lines[i] = strings.TrimRight("> "+line, " ")
	}
	return strings.Join(lines, "\n")
}

func panelTitle(panelType string) string {
	switch panelType {
	case "info":
		return "Info"
	case "note":
		return "Note"
	case "warning":
		return "Warning"
	case "error":
		return "Error"
	case "success":
		return "Success"
	case "":
		return "Panel"
	}
	return strings.ToUpper(panelType[:1]) + panelType[1:]
}

func mediaPlaceholder(n *node) string {
	label := n.attrString("alt")
	if label == "" {
		label = n.attrString("id")
	}
	if label == "" {
		label = "media"
	}
	return fmt.Sprintf("[media: %s]", label)
}

// renderTable builds a GFM table. Cells with colspan are expanded by
// repeating the cell, every row is padded to the widest row, and a blank
// header row is synthesized when the table has no header cells in its first
// row, because GFM tables require a header and separator.
func renderTable(n *node, depth int) string {
	var rows [][]string
	firstIsHeader := false

	for i := range n.Content {
		row := &n.Content[i]
		if row.Type != "tableRow" {
			continue
		}
		var cells []string
		header := len(row.Content) > 0
		for j := range row.Content {
			cell := &row.Content[j]
			if cell.Type != "tableHeader" {
				header = false
			}
			content := tableCellText(cell, depth+1)
			span := cell.attrInt("colspan", 1)
			if span < 1 {
				span = 1
			}
			for k := 0; k < span; k++ {
				cells = append(cells, content)
			}
		}
		if len(rows) == 0 {
			firstIsHeader = header
		}
		rows = append(rows, cells)
	}

	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" " + c + " |")
		}
		b.WriteString("\n")
	}

	if firstIsHeader {
		writeRow(rows[0])
		rows = rows[1:]
	} else {
		writeRow(make([]string, width))
	}
	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows {
		writeRow(r)
	}
	return strings.TrimRight(b.String(), "\n")
}

// tableCellText flattens a cell to a single line: block breaks become <br>
// and pipes are escaped so they cannot terminate the cell.
func tableCellText(cell *node, depth int) string {
	s := renderBlocks(cell.Content, depth)
	s = strings.ReplaceAll(s, "\n\n", "<br>")
	s = strings.ReplaceAll(s, "\n", "<br>")
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.TrimSpace(s)
}

// renderInline renders inline content of a paragraph-like node.
func renderInline(nodes []node, depth int) string {
	if depth > maxDepth {
		return ""
	}
	var b strings.Builder
	for i := range nodes {
		b.WriteString(renderInlineNode(&nodes[i], depth))
	}
	return b.String()
}

func renderInlineNode(n *node, depth int) string {
	switch n.Type {
	case "text":
		return applyMarks(n.Text, n.Marks)
	case "hardBreak":
		return "\n"
	case "mention":
		if t := n.attrString("text"); t != "" {
			return t
		}
		return "@" + n.attrString("id")
	case "emoji":
		if s := n.attrString("shortName"); s != "" {
			return s
		}
		return n.attrString("text")
	case "date":
		return dateText(n)
	case "status":
		return "[" + strings.ToUpper(n.attrString("text")) + "]"
	case "inlineCard":
		if u := n.attrString("url"); u != "" {
			return "[" + u + "](" + u + ")"
		}
		return ""
	case "media":
		return mediaPlaceholder(n)
	default:
		if len(n.Content) > 0 {
			return renderInline(n.Content, depth+1)
		}
		return ""
	}
}

// dateText renders a date node; the timestamp attr is epoch milliseconds.
func dateText(n *node) string {
	ts := n.attrString("timestamp")
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ts
	}
	return time.Unix(ms/1000, 0).UTC().Format("2006-01-02")
}

func applyMarks(s string, marks []mark) string {
	if s == "" {
		return s
	}
	// Code wins over the decorating marks; a link wraps whatever is inside.
	var href string
	code := false
	for i := range marks {
		switch marks[i].Type {
		case "code":
			code = true
		case "link":
			href = marks[i].attrString("href")
		}
	}
	if code {
		s = "`" + s + "`"
	} else {
		for i := range marks {
			switch marks[i].Type {
			case "strong":
				s = "**" + s + "**"
			case "em", "underline":
				s = "*" + s + "*"
			case "strike":
				s = "~~" + s + "~~"
			}
		}
	}
	if href != "" {
		s = "[" + s + "](" + href + ")"
	}
	return s
}
