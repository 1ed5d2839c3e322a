// Package adf renders Atlassian Document Format (the JSON document tree Jira
// Cloud returns for rich-text fields) into GitHub-flavored Markdown or plain
// text. The renderer walks the node tree directly; there is no intermediate
// AST beyond the decoded JSON.
package adf

import (
	"encoding/json"
	"strconv"
	"strings"
)

// maxDepth bounds the tree walk; real documents nest a handful of levels,
// anything deeper is hostile input and gets cut off silently.
const maxDepth = 64

type node struct {
	Type    string                     `json:"type"`
	Text    string                     `json:"text"`
	Content []node                     `json:"content"`
	Attrs   map[string]json.RawMessage `json:"attrs"`
	Marks   []mark                     `json:"marks"`
}

type mark struct {
	Type  string                     `json:"type"`
	Attrs map[string]json.RawMessage `json:"attrs"`
}

func (n *node) attrString(key string) string {
	raw, ok := n.Attrs[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func (n *node) attrInt(key string, def int) int {
	raw, ok := n.Attrs[key]
	if !ok {
		return def
	}
	var f float64
	if json.Unmarshal(raw, &f) != nil {
		return def
	}
	return int(f)
}

func (m *mark) attrString(key string) string {
	raw, ok := m.Attrs[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func decode(raw json.RawMessage) (*node, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	var doc node
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	if doc.Type != "doc" {
		return nil, false
	}
	return &doc, true
}

// IsDoc reports whether raw decodes as an ADF document.
func IsDoc(raw json.RawMessage) bool {
	_, ok := decode(raw)
	return ok
}

// HasContent reports whether raw is an ADF document with any non-empty text
// content. Documents made of empty paragraphs count as empty.
func HasContent(raw json.RawMessage) bool {
	doc, ok := decode(raw)
	if !ok {
		return false
	}
	return strings.TrimSpace(plainBlocks(doc.Content, 0)) != ""
}
