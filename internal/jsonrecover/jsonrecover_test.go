package jsonrecover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	obj, err := ExtractObject(`noise {"a":{"b":2}} more noise`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":2}}`, obj)
}

func TestExtractObjectSurroundedByText(t *testing.T) {
	text := "Sure! Here is the JSON you asked for:\n```json\n" +
		`{"name":"Algorithms","credits":6}` + "\n```\nLet me know if you need anything else."

	obj, err := ExtractObject(text)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Algorithms","credits":6}`, obj)
}

func TestExtractObjectReturnsFirstOfAdjacentObjects(t *testing.T) {
	obj, err := ExtractObject(`{"first":1}{"second":2}`)
	require.NoError(t, err)
	assert.Equal(t, `{"first":1}`, obj)
}

func TestExtractObjectNested(t *testing.T) {
	obj, err := ExtractObject(`{"a":{"b":{"c":[1,2,3]}},"d":4}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":{"c":[1,2,3]}},"d":4}`, obj)
}

func TestExtractObjectNoBraces(t *testing.T) {
	_, err := ExtractObject("the model refused to answer")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestExtractObjectUnbalanced(t *testing.T) {
	_, err := ExtractObject(`{"a": {"b": 1}`)
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestExtractObjectEmptyInput(t *testing.T) {
	_, err := ExtractObject("")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

// Braces inside string literals are not recognized by the depth scan. This
// pins the documented limitation so a future "fix" shows up as a test change.
func TestExtractObjectBraceInStringLiteral(t *testing.T) {
	obj, err := ExtractObject(`{"a":"}"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"}`, obj)
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		Grade int `json:"grade"`
	}
	err := DecodeObject(`the grade is {"grade": 87} out of 100`, &out)
	require.NoError(t, err)
	assert.Equal(t, 87, out.Grade)
}

func TestDecodeObjectInvalidJSON(t *testing.T) {
	var out map[string]any
	err := DecodeObject(`{not json at all}`, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJSONObject)
}
