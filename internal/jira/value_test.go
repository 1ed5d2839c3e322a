package jira

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindNull, NewValue(nil).Kind())
	assert.Equal(t, KindNull, NewValue(json.RawMessage(`null`)).Kind())
	assert.Equal(t, KindString, NewValue(json.RawMessage(`"x"`)).Kind())
	assert.Equal(t, KindNumber, NewValue(json.RawMessage(`42`)).Kind())
	assert.Equal(t, KindBool, NewValue(json.RawMessage(`true`)).Kind())
	assert.Equal(t, KindObject, NewValue(json.RawMessage(`{}`)).Kind())
	assert.Equal(t, KindArray, NewValue(json.RawMessage(`[]`)).Kind())
	assert.Equal(t, KindString, NewValue(json.RawMessage("  \"padded\"")).Kind())
}

func TestStringField(t *testing.T) {
	v := NewValue(json.RawMessage(`{"value":"High","id":10001}`))
	assert.Equal(t, "High", v.StringField("value"))
	assert.Equal(t, "10001", v.StringField("id"))
	assert.Equal(t, "", v.StringField("missing"))
}

func TestMembersSorted(t *testing.T) {
	v := NewValue(json.RawMessage(`{"zeta":1,"alpha":{"nested":true},"mid":"x"}`))
	members, ok := v.Members()
	require.True(t, ok)
	require.Len(t, members, 3)
	assert.Equal(t, "alpha", members[0].Key)
	assert.Equal(t, "mid", members[1].Key)
	assert.Equal(t, "zeta", members[2].Key)
	assert.Equal(t, KindObject, members[0].Value.Kind())

	_, ok = NewValue(json.RawMessage(`[1,2]`)).Members()
	assert.False(t, ok)
}

func TestAsArray(t *testing.T) {
	elems, ok := NewValue(json.RawMessage(`[1,"two",null]`)).AsArray()
	require.True(t, ok)
	require.Len(t, elems, 3)
	assert.Equal(t, KindNumber, elems[0].Kind())
	assert.Equal(t, KindString, elems[1].Kind())
	assert.Equal(t, KindNull, elems[2].Kind())
}
