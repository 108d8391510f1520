package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()
	require.NoError(t, id.Validate())
	assert.NotEqual(t, id, NewID())
	assert.Len(t, id.Short(), 8)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"uppercase is canonicalised", "550E8400-E29B-41D4-A716-446655440000", false},
		{"empty", "", true},
		{"garbage", "not-a-uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ID("550e8400-e29b-41d4-a716-446655440000"), id)
		})
	}
}

func TestID_JSON(t *testing.T) {
	type wrapper struct {
		ID ID `json:"id"`
	}

	id := NewID()
	data, err := json.Marshal(wrapper{ID: id})
	require.NoError(t, err)

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out.ID)

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":null}`, string(data))

	require.NoError(t, json.Unmarshal([]byte(`{"id":null}`), &out))
	assert.True(t, out.ID.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"id":"nope"}`), &out))
}
