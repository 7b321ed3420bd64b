package avatar

import (
	"errors"
	"fmt"

	"github.com/ent0n29/avatar-tour/internal/credential"
)

// ConnectionError means the realtime attach failed, or the connection was lost,
// after a valid credential was issued.
type ConnectionError struct {
	Reason    string
	Err       error
	Retryable bool
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SpeakError is logged and counted, never shown.
type SpeakError struct {
	Line string
	Err  error
}

func (e *SpeakError) Error() string { return fmt.Sprintf("speak %s line: %v", e.Line, e.Err) }

func (e *SpeakError) Unwrap() error { return e.Err }

// TeardownError is logged only; the caller is already leaving.
type TeardownError struct {
	Step string
	Err  error
}

func (e *TeardownError) Error() string { return fmt.Sprintf("teardown %s: %v", e.Step, e.Err) }

func (e *TeardownError) Unwrap() error { return e.Err }

func classify(err error) (ErrorKind, bool) {
	var cfgErr *credential.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ErrorKindConfiguration, false
	}
	var credErr *credential.CredentialError
	if errors.As(err, &credErr) {
		return ErrorKindCredential, credErr.Retryable
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return ErrorKindConnection, connErr.Retryable
	}
	return ErrorKindConnection, false
}
