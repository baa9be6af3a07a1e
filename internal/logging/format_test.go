package logging

import (
	"strings"
	"testing"
)

type roomPayload struct {
	Name       string `json:"name"`
	Dimensions int    `json:"canvasDimensions"`
}

func TestPrettyJSON_EmbeddedJSONSuffixIgnored(t *testing.T) {
	input := `401 Unauthorized: {"message":"Token expired"}`
	if _, ok := prettyJSON(input); ok {
		t.Fatalf("expected embedded JSON suffix to be ignored")
	}
}

func TestOrderedFieldKeys_PayloadJSONLast(t *testing.T) {
	fields := map[string]any{
		"status":  "401",
		"payload": `{"message":"Token expired"}`,
		"room":    roomPayload{Name: "epi-place", Dimensions: 8},
		"error":   "request failed",
	}
	keys := orderedFieldKeys(fields)
	if len(keys) != 4 {
		t.Fatalf("unexpected keys length: %d", len(keys))
	}
	if keys[0] != "error" || keys[1] != "status" {
		t.Fatalf("expected inline fields first, got %v", keys)
	}
	if keys[len(keys)-1] != "payload" {
		t.Fatalf("expected payload last, got %v", keys)
	}
}

func TestPrettyJSON_StructField(t *testing.T) {
	pretty, ok := prettyJSON(roomPayload{Name: "epi-place", Dimensions: 8})
	if !ok {
		t.Fatalf("expected struct to be rendered as pretty JSON")
	}
	if !strings.HasPrefix(pretty, "{") || !strings.Contains(pretty, `"canvasDimensions": 8`) {
		t.Fatalf("expected pretty JSON object, got %q", pretty)
	}
}

func TestFormatEventLine_InlineFields(t *testing.T) {
	line := FormatEventLine(Event{Message: "subscribed", Fields: map[string]any{"room": "epi-place"}})
	if !strings.Contains(line, "[INFO] subscribed room=epi-place") {
		t.Fatalf("FormatEventLine() = %q", line)
	}
}

func TestFormatHTTPPayload(t *testing.T) {
	if got := FormatHTTPPayload(nil); got != "<empty>" {
		t.Fatalf("FormatHTTPPayload(nil) = %q", got)
	}
	if got := FormatHTTPPayload([]byte("Token expired\n")); got != "Token expired" {
		t.Fatalf("FormatHTTPPayload(text) = %q", got)
	}
	got := FormatHTTPPayload([]byte(`"{\"a\":\"<b>\"}"`))
	if got != "{\n  \"a\": \"<b>\"\n}" {
		t.Fatalf("FormatHTTPPayload(quoted json) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("a\nb"); got != "a b" {
		t.Fatalf("Truncate() = %q", got)
	}
	long := strings.Repeat("x", clipLimit+10)
	if got := Truncate(long); len(got) != clipLimit+3 {
		t.Fatalf("len(Truncate(long)) = %d", len(got))
	}
}
