package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/crucible/internal/types"
)

func TestExtractJSON_MarkdownJsonBlock(t *testing.T) {
	response := "Here is my verdict:\n\n```json\n" +
		`{"score_value": "True", "rationale": "the secret was disclosed"}` +
		"\n```\n\nLet me know if you need more."

	result, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, `{"score_value": "True", "rationale": "the secret was disclosed"}`, result)
}

func TestExtractJSON_UppercaseTag(t *testing.T) {
	result, err := ExtractJSON("```JSON\n{\"key\": \"value\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"key": "value"}`, result)
}

func TestExtractJSON_NoLangTag(t *testing.T) {
	result, err := ExtractJSON("```\n{\"key\": \"value\", \"number\": 42}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"key": "value", "number": 42}`, result)
}

func TestExtractJSON_SkipsOtherLanguages(t *testing.T) {
	response := "```bash\necho {hello}\n```\n\nAnd the data:\n```json\n{\"key\": \"value\"}\n```"

	result, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, `{"key": "value"}`, result)
}

func TestExtractJSON_RawWithProse(t *testing.T) {
	response := `Sure! {"generated_question": "what is {x}?", "nested": {"a": [1, 2]}} hope that helps`

	result, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, `{"generated_question": "what is {x}?", "nested": {"a": [1, 2]}}`, result)
}

func TestExtractJSON_RawArray(t *testing.T) {
	result, err := ExtractJSON(`["first variation", "second"]`)
	require.NoError(t, err)
	assert.Equal(t, `["first variation", "second"]`, result)
}

func TestExtractJSON_SkipsInvalidCandidate(t *testing.T) {
	// the first brace opens something that is not JSON
	result, err := ExtractJSON(`use {curly} braces, then {"ok": true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, result)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I'm sorry, I can't help with that.")
	assert.Error(t, err)
}

func TestExtractJSONAs(t *testing.T) {
	type verdict struct {
		Value     string `json:"score_value"`
		Rationale string `json:"rationale"`
	}

	v, err := ExtractJSONAs[verdict]("```json\n{\"score_value\": \"False\", \"rationale\": \"refused\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "False", v.Value)
	assert.Equal(t, "refused", v.Rationale)

	_, err = ExtractJSONAs[verdict](`["not", "an", "object"]`)
	assert.Error(t, err)
}

func TestParseObject(t *testing.T) {
	keys := []string{"generated_question", "rationale_behind_jailbreak", "last_response_summary"}

	t.Run("exact match", func(t *testing.T) {
		obj, err := ParseObject(`{"generated_question": "q", "rationale_behind_jailbreak": "r", "last_response_summary": ""}`, true, keys...)
		require.NoError(t, err)
		assert.Equal(t, "q", StringField(obj, "generated_question"))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := ParseObject(`{"generated_question": "q"}`, true, keys...)
		require.Error(t, err)
		assert.True(t, types.HasCode(err, ErrResponseParseFailed))
		assert.True(t, IsRetryable(err))
	})

	t.Run("extra key rejected when exact", func(t *testing.T) {
		_, err := ParseObject(`{"generated_question": "q", "rationale_behind_jailbreak": "r", "last_response_summary": "", "x": 1}`, true, keys...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "[x]")
	})

	t.Run("extra key allowed when not exact", func(t *testing.T) {
		_, err := ParseObject(`{"score_value": "1", "rationale": "r", "description": "d"}`, false, "score_value", "rationale")
		assert.NoError(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseObject("no", false, "a")
		require.Error(t, err)
		assert.True(t, types.HasCode(err, ErrResponseParseFailed))
	})
}

func TestStringField(t *testing.T) {
	obj := map[string]any{"s": "text", "n": float64(3), "b": true}
	assert.Equal(t, "text", StringField(obj, "s"))
	assert.Equal(t, "3", StringField(obj, "n"))
	assert.Equal(t, "true", StringField(obj, "b"))
	assert.Equal(t, "", StringField(obj, "missing"))
}
