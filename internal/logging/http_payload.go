package logging

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FormatHTTPPayload renders a response body for log output. JSON bodies are
// re-indented without HTML escaping; JSON string bodies are unquoted first.
func FormatHTTPPayload(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "<empty>"
	}

	var quoted string
	if json.Unmarshal([]byte(text), &quoted) == nil {
		text = strings.TrimSpace(quoted)
	}

	var value any
	if json.Unmarshal([]byte(text), &value) != nil {
		return Truncate(text)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if enc.Encode(value) != nil {
		return Truncate(text)
	}
	return strings.TrimSpace(buf.String())
}
