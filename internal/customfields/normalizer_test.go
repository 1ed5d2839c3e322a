package customfields

import (
	"encoding/json"
	"reflect"
	"testing"

	"jira2redmine/internal/types"
)

func fieldsOf(pairs map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(pairs))
	for k, v := range pairs {
		out[k] = json.RawMessage(v)
	}
	return out
}

func TestPayloadScalarFormats(t *testing.T) {
	tests := []struct {
		name    string
		mapping types.CustomFieldMapping
		raw     string
		want    any // nil means the field must be omitted
	}{
		{
			name:    "option object uses value key",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `{"self":"https://x","value":"High","id":"10201"}`,
			want:    "High",
		},
		{
			name:    "object falls back to name",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `{"name":"Backend","id":"9"}`,
			want:    "Backend",
		},
		{
			name:    "plain string trimmed",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `"  hello  "`,
			want:    "hello",
		},
		{
			name:    "bool true",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "bool"},
			raw:     `true`,
			want:    "1",
		},
		{
			name:    "bool false",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "bool"},
			raw:     `false`,
			want:    "0",
		},
		{
			name:    "boolean from yes string",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "boolean"},
			raw:     `"Yes"`,
			want:    "1",
		},
		{
			name:    "boolean from numeric zero",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "bool"},
			raw:     `0`,
			want:    "0",
		},
		{
			name:    "bool rejects arbitrary string",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "bool"},
			raw:     `"maybe"`,
			want:    nil,
		},
		{
			name:    "int from number",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "int"},
			raw:     `42`,
			want:    "42",
		},
		{
			name:    "int from string",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "integer"},
			raw:     `" 42 "`,
			want:    "42",
		},
		{
			name:    "int rejects fraction",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "int"},
			raw:     `4.5`,
			want:    nil,
		},
		{
			name:    "float trims trailing zeros",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "float"},
			raw:     `4.50`,
			want:    "4.5",
		},
		{
			name:    "decimal from string",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "decimal"},
			raw:     `"3.140"`,
			want:    "3.14",
		},
		{
			name:    "date takes first ten chars",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "date"},
			raw:     `"2024-05-01T10:00:00.000+0000"`,
			want:    "2024-05-01",
		},
		{
			name:    "date passes bare date",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "date"},
			raw:     `"2024-05-01"`,
			want:    "2024-05-01",
		},
		{
			name:    "date rejects garbage",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, FieldFormat: "date"},
			raw:     `"soon"`,
			want:    nil,
		},
		{
			name:    "null omitted",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `null`,
			want:    nil,
		},
		{
			name:    "empty string omitted",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `""`,
			want:    nil,
		},
		{
			name:    "none string omitted",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `"None"`,
			want:    nil,
		},
		{
			name:    "empty array omitted",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1, IsMultiple: true},
			raw:     `[]`,
			want:    nil,
		},
		{
			name:    "empty ADF doc omitted",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `{"type":"doc","version":1,"content":[]}`,
			want:    nil,
		},
		{
			name:    "ADF doc rendered to plaintext",
			mapping: types.CustomFieldMapping{JiraFieldID: "customfield_10001", RedmineCustomFieldID: 1},
			raw:     `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"release note"}]}]}`,
			want:    "release note",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New([]types.CustomFieldMapping{tt.mapping})
			got, warnings := n.Payload(fieldsOf(map[string]string{tt.mapping.JiraFieldID: tt.raw}))
			if len(warnings) != 0 {
				t.Errorf("unexpected warnings: %v", warnings)
			}
			if tt.want == nil {
				if len(got) != 0 {
					t.Fatalf("expected empty payload, got %v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 entry, got %v", got)
			}
			if got[0].ID != tt.mapping.RedmineCustomFieldID {
				t.Errorf("expected id %d, got %d", tt.mapping.RedmineCustomFieldID, got[0].ID)
			}
			if !reflect.DeepEqual(got[0].Value, tt.want) {
				t.Errorf("expected value %v, got %v", tt.want, got[0].Value)
			}
		})
	}
}

func TestPayloadMultiValue(t *testing.T) {
	n := New([]types.CustomFieldMapping{
		{JiraFieldID: "customfield_20001", RedmineCustomFieldID: 5, IsMultiple: true},
	})

	fields := fieldsOf(map[string]string{
		"customfield_20001": `[{"value":"Alpha"},{"value":"Beta"},{"value":"Alpha"},{"value":"None"}]`,
	})
	got, _ := n.Payload(fields)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %v", got)
	}
	want := []string{"Alpha", "Beta"}
	if !reflect.DeepEqual(got[0].Value, want) {
		t.Errorf("expected %v, got %v", want, got[0].Value)
	}
}

func TestPayloadSingleValueTakesFirst(t *testing.T) {
	n := New([]types.CustomFieldMapping{
		{JiraFieldID: "customfield_20001", RedmineCustomFieldID: 5},
	})

	fields := fieldsOf(map[string]string{
		"customfield_20001": `[{"value":"Alpha"},{"value":"Beta"}]`,
	})
	got, _ := n.Payload(fields)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %v", got)
	}
	if got[0].Value != "Alpha" {
		t.Errorf("expected Alpha, got %v", got[0].Value)
	}
}

func TestPayloadLabelManager(t *testing.T) {
	n := New([]types.CustomFieldMapping{
		{JiraFieldID: "customfield_30001", RedmineCustomFieldID: 7, IsMultiple: true},
	})

	fields := fieldsOf(map[string]string{
		"customfield_30001": `{"labels":["ops","","ops","none","infra"]}`,
	})
	got, _ := n.Payload(fields)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %v", got)
	}
	want := []string{"ops", "infra"}
	if !reflect.DeepEqual(got[0].Value, want) {
		t.Errorf("expected %v, got %v", want, got[0].Value)
	}
}

func TestPayloadEnumerationSubstitution(t *testing.T) {
	tests := []struct {
		name string
		enum map[string]string
		raw  string
		want string
	}{
		{
			name: "matches by value case insensitively",
			enum: map[string]string{"high": "Hoch"},
			raw:  `{"value":"HIGH","id":"77"}`,
			want: "Hoch",
		},
		{
			name: "matches by option id",
			enum: map[string]string{"77": "Hoch"},
			raw:  `{"value":"High","id":"77"}`,
			want: "Hoch",
		},
		{
			name: "unmapped value passes through",
			enum: map[string]string{"low": "Niedrig"},
			raw:  `{"value":"High","id":"77"}`,
			want: "High",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New([]types.CustomFieldMapping{
				{JiraFieldID: "customfield_40001", RedmineCustomFieldID: 9, FieldFormat: "list", Enumeration: tt.enum},
			})
			got, _ := n.Payload(fieldsOf(map[string]string{"customfield_40001": tt.raw}))
			if len(got) != 1 {
				t.Fatalf("expected 1 entry, got %v", got)
			}
			if got[0].Value != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got[0].Value)
			}
		})
	}
}

func TestPayloadCascading(t *testing.T) {
	parentID := int64(11)
	cascading := types.CustomFieldMapping{
		JiraFieldID:                "customfield_50001",
		RedmineCustomFieldID:       12,
		FieldFormat:                "depending_list",
		ParentRedmineCustomFieldID: &parentID,
		CascadingOptions: []types.CascadingOption{
			{ChildOptionID: "7", ParentLabel: "Parent P", ChildLabel: "Child A"},
			{ChildOptionID: "8", ParentLabel: "Parent P", ChildLabel: "Child B"},
		},
	}

	t.Run("resolves child by option id", func(t *testing.T) {
		n := New([]types.CustomFieldMapping{cascading})
		got, warnings := n.Payload(fieldsOf(map[string]string{
			"customfield_50001": `{"value":"Parent P","id":"100","child":{"id":"7","value":"Child A"}}`,
		}))
		if len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
		want := []types.CustomFieldValue{
			{ID: 11, Value: "Parent P"},
			{ID: 12, Value: "Child A"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("resolves flat child shape by unique label", func(t *testing.T) {
		n := New([]types.CustomFieldMapping{cascading})
		got, warnings := n.Payload(fieldsOf(map[string]string{
			"customfield_50001": `{"value":"Child B"}`,
		}))
		if len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
		want := []types.CustomFieldValue{
			{ID: 11, Value: "Parent P"},
			{ID: 12, Value: "Child B"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("ambiguous label emits warning", func(t *testing.T) {
		dup := cascading
		dup.CascadingOptions = []types.CascadingOption{
			{ChildOptionID: "7", ParentLabel: "Parent P", ChildLabel: "Child A"},
			{ChildOptionID: "9", ParentLabel: "Parent Q", ChildLabel: "Child A"},
		}
		n := New([]types.CustomFieldMapping{dup})
		got, warnings := n.Payload(fieldsOf(map[string]string{
			"customfield_50001": `{"value":"Child A"}`,
		}))
		if len(got) != 0 {
			t.Errorf("expected no entries, got %v", got)
		}
		if len(warnings) != 1 {
			t.Errorf("expected 1 warning, got %v", warnings)
		}
	})

	t.Run("unknown option emits warning", func(t *testing.T) {
		n := New([]types.CustomFieldMapping{cascading})
		got, warnings := n.Payload(fieldsOf(map[string]string{
			"customfield_50001": `{"child":{"id":"99","value":"Child Z"}}`,
		}))
		if len(got) != 0 {
			t.Errorf("expected no entries, got %v", got)
		}
		if len(warnings) != 1 {
			t.Errorf("expected 1 warning, got %v", warnings)
		}
	})
}

func TestPayloadPreservesMappingOrder(t *testing.T) {
	n := New([]types.CustomFieldMapping{
		{JiraFieldID: "customfield_b", RedmineCustomFieldID: 2},
		{JiraFieldID: "customfield_a", RedmineCustomFieldID: 1},
		{JiraFieldID: "customfield_c", RedmineCustomFieldID: 3},
	})

	fields := fieldsOf(map[string]string{
		"customfield_a": `"A"`,
		"customfield_b": `"B"`,
		"customfield_c": `"C"`,
	})
	got, _ := n.Payload(fields)
	wantIDs := []int64{2, 1, 3}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d entries, got %v", len(wantIDs), got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("entry %d: expected id %d, got %d", i, id, got[i].ID)
		}
	}
}

func TestPayloadDeduplicatesTargetIDs(t *testing.T) {
	n := New([]types.CustomFieldMapping{
		{JiraFieldID: "customfield_a", RedmineCustomFieldID: 4},
		{JiraFieldID: "customfield_b", RedmineCustomFieldID: 4},
	})

	fields := fieldsOf(map[string]string{
		"customfield_a": `"first"`,
		"customfield_b": `"second"`,
	})
	got, _ := n.Payload(fields)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %v", got)
	}
	if got[0].Value != "first" {
		t.Errorf("expected first mapping to win, got %v", got[0].Value)
	}
}

func TestPayloadMissingFieldOmitted(t *testing.T) {
	n := New([]types.CustomFieldMapping{
		{JiraFieldID: "customfield_gone", RedmineCustomFieldID: 6},
	})
	got, warnings := n.Payload(fieldsOf(map[string]string{"customfield_other": `"x"`}))
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %v", got)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}
