package mailqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every enqueue/cancel input error.
	ErrValidation = errors.New("mailqueue: invalid email")
	// ErrFromRequired is returned when neither the email nor the config defines a sender.
	ErrFromRequired = fmt.Errorf("%w: from is required", ErrValidation)
	// ErrNoRecipient is returned when to, cc and bcc are all empty.
	ErrNoRecipient = fmt.Errorf("%w: no recipient defined", ErrValidation)
	// ErrNoContent is returned when both text and html are empty.
	ErrNoContent = fmt.Errorf("%w: content is not defined, use text or html", ErrValidation)
	// ErrInvalidPriority is returned when the priority is negative.
	ErrInvalidPriority = fmt.Errorf("%w: priority must be a non-negative number", ErrValidation)
	// ErrInvalidAddress is returned when an address cannot be parsed.
	ErrInvalidAddress = fmt.Errorf("%w: invalid address", ErrValidation)
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = fmt.Errorf("%w: id is invalid", ErrValidation)

	// ErrNotFound is returned when no email has the requested id.
	ErrNotFound = errors.New("mailqueue: email not found")
	// ErrStateConflict is returned when the email status forbids the requested transition.
	ErrStateConflict = errors.New("mailqueue: email status forbids operation")
	// ErrTransport marks failures reported by the mail transport.
	ErrTransport = errors.New("mailqueue: transport failed")
	// ErrSubscriber wraps errors returned by event subscribers after state was persisted.
	ErrSubscriber = errors.New("mailqueue: event subscriber failed")

	// ErrAlreadyStarted is returned by Start on a running mailer.
	ErrAlreadyStarted = errors.New("mailqueue: already started")
	// ErrInvalidConfig is returned by New when an option value is out of range.
	ErrInvalidConfig = errors.New("mailqueue: invalid config")
	// ErrInvalidBatchSize indicates that the requested batch size is negative.
	ErrInvalidBatchSize = errors.New("mailqueue: batch size must be non-negative")
)

// StateError reports an operation rejected because of the email's current status.
type StateError struct {
	ID     ID
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("mailqueue: email %s has status %q", e.ID, e.Status)
}

// Unwrap returns ErrStateConflict.
func (e *StateError) Unwrap() error {
	return ErrStateConflict
}

// TransportError carries a failed delivery attempt.
type TransportError struct {
	ID  ID
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mailqueue: send %s: %v", e.ID, e.Err)
}

// Unwrap returns both ErrTransport and the transport's own error.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
