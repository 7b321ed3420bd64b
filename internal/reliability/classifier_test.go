package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableCloseReason(t *testing.T) {
	if !IsRetryableCloseReason("network") {
		t.Fatalf("network should be retryable")
	}
	if IsRetryableCloseReason("invalid_token") {
		t.Fatalf("invalid_token should not be retryable")
	}
}

func TestIsConcurrencyLimit(t *testing.T) {
	if !IsConcurrencyLimit(429, "concurrent_session_limit") {
		t.Fatalf("expected concurrency limit")
	}
	if IsConcurrencyLimit(500, "") {
		t.Fatalf("500 without reason is not a concurrency limit")
	}
}
