package reliability

// IsRetryableHTTPStatus reports whether a fresh start() is likely to succeed after
// a credential request failed with code. Nothing retries automatically; the flag is
// surfaced to the host so it can offer a retry.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableCloseReason classifies reasons the provider gives when it drops a
// realtime connection.
func IsRetryableCloseReason(reason string) bool {
	switch reason {
	case "timeout", "server_restart", "network", "going_away":
		return true
	default:
		return false
	}
}

// IsConcurrencyLimit reports whether the provider refused a connection because the
// account already holds a live session.
func IsConcurrencyLimit(code int, reason string) bool {
	if code == 429 && reason == "concurrent_session_limit" {
		return true
	}
	return reason == "concurrent_session_limit" || reason == "too_many_sessions"
}
