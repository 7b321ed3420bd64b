package credential

import "fmt"

// ConfigurationError means a required key or URL is missing. It is fatal for the
// attempt and is reported before any network call.
type ConfigurationError struct {
	Setting string
	Hint    string
}

func (e *ConfigurationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("missing %s: %s", e.Setting, e.Hint)
	}
	return "missing " + e.Setting
}

// CredentialError covers network failures, non-2xx answers and bodies without a
// usable token. Message is what the host displays.
type CredentialError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *CredentialError) Error() string { return e.Message }

func (e *CredentialError) Unwrap() error { return e.Err }
