// Package text holds small text helpers shared by the extractor and
// transformer: grapheme-aware truncation, filename sanitization, and
// whitespace normalization.
package text

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	excessNewlines      = regexp.MustCompile(`\n{3,}`)
)

// TruncateGraphemes shortens s to at most max grapheme clusters. Cuts fall on
// cluster boundaries, so emoji and combining sequences are never split.
func TruncateGraphemes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	g := uniseg.NewGraphemes(s)
	n := 0
	for g.Next() {
		n++
		if n > max {
			from, _ := g.Positions()
			return s[:from]
		}
	}
	return s
}

// GraphemeCount returns the number of grapheme clusters in s.
func GraphemeCount(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// SanitizeFilename replaces every character outside [A-Za-z0-9._-] with an
// underscore and trims leading and trailing underscores. An empty result
// becomes "attachment".
func SanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "attachment"
	}
	return s
}

// CollapseNewlines reduces runs of three or more newlines to exactly two.
func CollapseNewlines(s string) string {
	return excessNewlines.ReplaceAllString(s, "\n\n")
}
