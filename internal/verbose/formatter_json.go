package verbose

import (
	"encoding/json"
)

// JSONVerboseFormatter formats events as single-line JSON.
type JSONVerboseFormatter struct{}

// NewJSONVerboseFormatter creates a new JSON formatter.
func NewJSONVerboseFormatter() *JSONVerboseFormatter {
	return &JSONVerboseFormatter{}
}

// Format converts a VerboseEvent to one line of JSON.
func (f *JSONVerboseFormatter) Format(event VerboseEvent) string {
	data, err := json.Marshal(event)
	if err != nil {
		data, _ = json.Marshal(map[string]any{
			"type":      "error",
			"message":   "failed to marshal verbose event",
			"error":     err.Error(),
			"timestamp": event.Timestamp,
		})
	}
	return string(data) + "\n"
}

var _ VerboseFormatter = (*JSONVerboseFormatter)(nil)
