package adf

import (
	"encoding/json"
	"strings"
)

// ToPlainText extracts the text content of an ADF document: the last-resort
// description fallback when Markdown rendering is not possible. Non-ADF input
// that decodes as a bare JSON string is returned as-is.
func ToPlainText(raw []byte) string {
	doc, ok := decode(raw)
	if !ok {
		s := strings.TrimSpace(string(raw))
		if len(s) >= 2 && s[0] == '"' {
			var plain string
			if err := json.Unmarshal(raw, &plain); err == nil {
				return plain
			}
		}
		return ""
	}
	out := plainBlocks(doc.Content, 0)
	return strings.TrimSpace(out)
}

func plainBlocks(nodes []node, depth int) string {
	if depth > maxDepth {
		return ""
	}
	var parts []string
	for i := range nodes {
		n := &nodes[i]
		var s string
		switch n.Type {
		case "bulletList", "orderedList":
			s = plainList(n, depth)
		case "table":
			s = plainTable(n, depth)
		case "codeBlock":
			s = plainInline(n.Content, depth+1)
		default:
			if hasBlockChildren(n) {
				s = plainBlocks(n.Content, depth+1)
			} else {
				s = plainInline(n.Content, depth+1)
			}
		}
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func plainList(n *node, depth int) string {
	var lines []string
	for i := range n.Content {
		item := &n.Content[i]
		if item.Type != "listItem" {
			continue
		}
		body := plainBlocks(item.Content, depth+1)
		body = strings.ReplaceAll(body, "\n\n", "\n")
		lines = append(lines, "- "+body)
	}
	return strings.Join(lines, "\n")
}

func plainTable(n *node, depth int) string {
	var lines []string
	for i := range n.Content {
		row := &n.Content[i]
		if row.Type != "tableRow" {
			continue
		}
		var cells []string
		for j := range row.Content {
			cells = append(cells, strings.TrimSpace(plainBlocks(row.Content[j].Content, depth+1)))
		}
		lines = append(lines, strings.Join(cells, " "))
	}
	return strings.Join(lines, "\n")
}

func plainInline(nodes []node, depth int) string {
	if depth > maxDepth {
		return ""
	}
	var b strings.Builder
	for i := range nodes {
		n := &nodes[i]
		switch n.Type {
		case "text":
			b.WriteString(n.Text)
		case "hardBreak":
			b.WriteString("\n")
		case "mention":
			if t := n.attrString("text"); t != "" {
				b.WriteString(t)
			} else {
				b.WriteString("@" + n.attrString("id"))
			}
		case "emoji":
			if s := n.attrString("shortName"); s != "" {
				b.WriteString(s)
			} else {
				b.WriteString(n.attrString("text"))
			}
		case "date":
			b.WriteString(dateText(n))
		case "status":
			b.WriteString(n.attrString("text"))
		case "inlineCard":
			b.WriteString(n.attrString("url"))
		default:
			if len(n.Content) > 0 {
				b.WriteString(plainInline(n.Content, depth+1))
			}
		}
	}
	return b.String()
}

// hasBlockChildren distinguishes containers (blockquote, panel, listItem)
// from paragraph-like nodes whose children are inline.
func hasBlockChildren(n *node) bool {
	for i := range n.Content {
		switch n.Content[i].Type {
		case "paragraph", "heading", "bulletList", "orderedList", "codeBlock",
			"blockquote", "panel", "table", "rule", "mediaGroup", "mediaSingle",
			"expand", "nestedExpand":
			return true
		}
	}
	return false
}
