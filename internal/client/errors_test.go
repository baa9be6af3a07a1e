package client

import (
	"fmt"
	"testing"
)

func TestIsUnauthorized_WrappedStatusError(t *testing.T) {
	err := fmt.Errorf("fetch config: %w", &HTTPStatusError{StatusCode: 401, Status: "401 Unauthorized"})
	if !IsUnauthorized(err) {
		t.Fatalf("IsUnauthorized(%v) = false, want true", err)
	}
	if IsUnauthorized(&HTTPStatusError{StatusCode: 500}) {
		t.Fatalf("IsUnauthorized(500) = true")
	}
	if got := (&HTTPStatusError{StatusCode: 500}).Error(); got != "http request failed" {
		t.Fatalf("Error() = %q", got)
	}
}
