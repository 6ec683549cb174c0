package crl

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDue means the active CRL is still inside its overlap window
	// and no new CRL is needed. Not an error condition for callers that
	// poll on a schedule.
	ErrNotDue = errors.New("crl: generation not due")

	// ErrCRLNotFound means no CRL exists under the requested ID.
	ErrCRLNotFound = errors.New("crl: not found")

	// ErrCANotFound means the CA is not configured.
	ErrCANotFound = errors.New("crl: CA not configured")

	// ErrCADisabled means CRL generation is disabled for the CA.
	ErrCADisabled = errors.New("crl: generation disabled for CA")

	// ErrPointNotFound means no distribution point exists under the
	// requested ID.
	ErrPointNotFound = errors.New("crl: distribution point not found")

	// ErrUnsigned means an operation that requires a signed CRL was
	// attempted on an unsigned artifact.
	ErrUnsigned = errors.New("crl: artifact is not signed")
)

// ConfigurationError reports an invalid CA or engine configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("crl: invalid configuration %s: %s", e.Field, e.Reason)
}

// SigningError wraps a failure from the signing authority. The pipeline
// treats it as terminal for the attempt: no CRL number is consumed and the
// active CRL is left untouched.
type SigningError struct {
	CAID string
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("crl: signing failed for CA %s: %v", e.CAID, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
