package customfields

import (
	"strings"

	"jira2redmine/internal/jira"
	"jira2redmine/internal/types"
)

// resolveCascading maps a Jira cascading select value onto the configured
// parent/child label pair. The raw value is an option object whose "child"
// key holds the selected child option; some exports flatten it to the child
// option alone. Resolution goes by child option id first, then by a unique
// child label match.
func resolveCascading(v jira.Value, m *types.CustomFieldMapping) (parent, child string, ok bool) {
	node := v
	if c, found := v.Field("child"); found && !c.IsNull() {
		node = c
	}

	if id := strings.TrimSpace(node.StringField("id")); id != "" {
		for _, opt := range m.CascadingOptions {
			if opt.ChildOptionID == id {
				return opt.ParentLabel, opt.ChildLabel, true
			}
		}
	}

	label := strings.TrimSpace(node.StringField("value"))
	if label == "" {
		label = strings.TrimSpace(node.StringField("name"))
	}
	if label == "" {
		return "", "", false
	}
	var match *types.CascadingOption
	for i := range m.CascadingOptions {
		if strings.EqualFold(m.CascadingOptions[i].ChildLabel, label) {
			if match != nil {
				return "", "", false
			}
			match = &m.CascadingOptions[i]
		}
	}
	if match == nil {
		return "", "", false
	}
	return match.ParentLabel, match.ChildLabel, true
}
