// Package customfields normalizes raw Jira custom field values into the
// Redmine custom field payload. Jira returns a different JSON shape per field
// type (scalars, option objects, label-manager objects, arrays, ADF
// documents, cascading pairs); Redmine wants strings. The mapping table
// decides which fields migrate, their Redmine ids, and their target format.
package customfields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"jira2redmine/internal/adf"
	"jira2redmine/internal/jira"
	"jira2redmine/internal/types"
)

// Normalizer applies the custom field mapping table to one issue at a time.
type Normalizer struct {
	mappings []types.CustomFieldMapping
}

// New keeps the mapping order; the payload preserves it.
func New(mappings []types.CustomFieldMapping) *Normalizer {
	return &Normalizer{mappings: mappings}
}

// Payload builds the ordered custom field payload for one issue's decoded
// fields object. Fields that are absent, empty, or normalize to nothing are
// left out entirely; an empty payload returns nil. Warnings cover values that
// were present but could not be resolved, so the caller can log them against
// the issue.
func (n *Normalizer) Payload(fields map[string]json.RawMessage) ([]types.CustomFieldValue, []string) {
	var out []types.CustomFieldValue
	var warnings []string
	seen := make(map[int64]bool)

	emit := func(id int64, value any) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, types.CustomFieldValue{ID: id, Value: value})
	}

	for i := range n.mappings {
		m := &n.mappings[i]
		raw, ok := fields[m.JiraFieldID]
		if !ok {
			continue
		}
		v := jira.NewValue(raw)
		if isEmpty(v) {
			continue
		}

		if m.Cascading() {
			parentLabel, childLabel, ok := resolveCascading(v, m)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("cascading field %s: unresolved child option %s", m.JiraFieldID, compactJSON(raw)))
				continue
			}
			emit(*m.ParentRedmineCustomFieldID, parentLabel)
			emit(m.RedmineCustomFieldID, childLabel)
			continue
		}

		values := normalizeAll(v, m)
		if len(values) == 0 {
			continue
		}
		if m.IsMultiple {
			emit(m.RedmineCustomFieldID, values)
		} else {
			emit(m.RedmineCustomFieldID, values[0])
		}
	}

	return out, warnings
}

// isEmpty implements the shared emptiness rules: JSON null, the empty or
// literal "none" string, an empty array, and an ADF document without content.
func isEmpty(v jira.Value) bool {
	switch v.Kind() {
	case jira.KindNull:
		return true
	case jira.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		return s == "" || strings.EqualFold(s, "none")
	case jira.KindArray:
		elems, _ := v.AsArray()
		return len(elems) == 0
	case jira.KindObject:
		if adf.IsDoc(v.Raw()) {
			return !adf.HasContent(v.Raw())
		}
	}
	return false
}

// normalizeAll expands multi-value shapes and normalizes each element,
// deduplicating while preserving order.
func normalizeAll(v jira.Value, m *types.CustomFieldMapping) []string {
	var elems []jira.Value

	if labels, ok := labelManagerValues(v); ok {
		elems = labels
	} else if arr, ok := v.AsArray(); ok {
		elems = arr
	} else {
		elems = []jira.Value{v}
	}

	var out []string
	seen := make(map[string]bool)
	for _, e := range elems {
		s, ok := normalizeScalar(e, m)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// labelManagerValues unpacks the label-manager shape {"labels": [...]}.
func labelManagerValues(v jira.Value) ([]jira.Value, bool) {
	labels, ok := v.Field("labels")
	if !ok {
		return nil, false
	}
	return labels.AsArray()
}

// normalizeScalar converts one element to its Redmine string form.
func normalizeScalar(v jira.Value, m *types.CustomFieldMapping) (string, bool) {
	if adf.IsDoc(v.Raw()) {
		s := strings.TrimSpace(adf.ToPlainText(v.Raw()))
		if s == "" {
			return "", false
		}
		return s, true
	}

	switch m.FieldFormat {
	case "bool", "boolean":
		return normalizeBool(v)

	case "int", "integer":
		if f, ok := v.AsNumber(); ok {
			if f != float64(int64(f)) {
				return "", false
			}
			return strconv.FormatInt(int64(f), 10), true
		}
		if s, ok := v.AsString(); ok {
			s = strings.TrimSpace(s)
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				return s, true
			}
		}
		return "", false

	case "float", "decimal":
		if f, ok := v.AsNumber(); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		if s, ok := v.AsString(); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64), true
			}
		}
		return "", false

	case "date":
		s, ok := v.AsString()
		if !ok {
			return "", false
		}
		return normalizeDate(s)

	default:
		s, ok := extractScalar(v)
		if !ok {
			return "", false
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "none") {
			return "", false
		}
		return substituteEnum(v, s, m.Enumeration), true
	}
}

// normalizeBool maps the truthy and falsy forms Jira produces (booleans,
// 0/1 numbers, yes/no and true/false strings) onto Redmine's "0"/"1".
func normalizeBool(v jira.Value) (string, bool) {
	if b, ok := v.AsBool(); ok {
		if b {
			return "1", true
		}
		return "0", true
	}
	if f, ok := v.AsNumber(); ok {
		switch f {
		case 1:
			return "1", true
		case 0:
			return "0", true
		}
		return "", false
	}
	s, ok := extractScalar(v)
	if !ok {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return "1", true
	case "false", "no", "0":
		return "0", true
	}
	return "", false
}

// normalizeDate accepts a plain YYYY-MM-DD prefix or any Jira timestamp.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		return s[:10], true
	}
	if t, err := jira.ParseTimestamp(s); err == nil {
		return t.UTC().Format("2006-01-02"), true
	}
	return "", false
}

// extractScalar pulls a display string out of an arbitrary element: option
// objects are read value-first, then name, label, id.
func extractScalar(v jira.Value) (string, bool) {
	switch v.Kind() {
	case jira.KindString:
		s, _ := v.AsString()
		return s, true
	case jira.KindNumber:
		f, _ := v.AsNumber()
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case jira.KindBool:
		if b, _ := v.AsBool(); b {
			return "1", true
		}
		return "0", true
	case jira.KindObject:
		for _, key := range []string{"value", "name", "label", "id"} {
			if s := v.StringField(key); strings.TrimSpace(s) != "" {
				return s, true
			}
		}
	}
	return "", false
}

// substituteEnum replaces a value through the enumeration lookup. Option
// objects are also tried by label, name, and option id; an unmapped value
// passes through unchanged and surfaces as a push error if Redmine rejects it.
func substituteEnum(v jira.Value, extracted string, enum map[string]string) string {
	if len(enum) == 0 {
		return extracted
	}
	keys := []string{extracted}
	if v.Kind() == jira.KindObject {
		for _, key := range []string{"value", "label", "name", "id"} {
			if s := v.StringField(key); s != "" {
				keys = append(keys, s)
			}
		}
	}
	for _, k := range keys {
		if mapped, ok := enum[strings.ToLower(strings.TrimSpace(k))]; ok {
			return mapped
		}
	}
	return extracted
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
