package smtp

import (
	"errors"
	"fmt"

	gosmtp "github.com/emersion/go-smtp"
)

// DeliveryError represents a per-recipient delivery failure. Temporary
// errors (4xx) may succeed on a later run; permanent errors (5xx) will
// not. Either way the batch continues with the next candidate.
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// AuthError represents an authentication or connection-level failure.
// It is fatal to the remainder of a run: every undispatched candidate
// is marked failed with this cause.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsFatal reports whether the error ends the whole run rather than a
// single recipient.
func IsFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// categorizeError converts an SMTP command error into a DeliveryError
// with type information.
func categorizeError(err error, phase string) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{
			Temporary: smtpErr.Code >= 400 && smtpErr.Code < 500,
			Message:   fmt.Sprintf("%s failed: %d %s", phase, smtpErr.Code, smtpErr.Message),
		}
	}

	// Non-SMTP errors at the command level are connection problems.
	return &DeliveryError{
		Temporary: true,
		Message:   fmt.Sprintf("%s failed: %v", phase, err),
	}
}
