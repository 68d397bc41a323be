package detection

import (
	"fmt"

	"github.com/bearwatch/bearwatch/internal/errors"
)

// ErrorKind is the machine-readable failure class reported to callers.
type ErrorKind string

const (
	KindInvalidInput          ErrorKind = "invalid_input"
	KindClassificationFailure ErrorKind = "classification_failure"
	KindPersistenceFailure    ErrorKind = "persistence_failure"
	KindUnavailable           ErrorKind = "unavailable"
	KindInternal              ErrorKind = "internal"
)

// Sentinel errors for errors.Is checks against a kind.
var (
	ErrInvalidInput          = errors.NewStd("invalid input")
	ErrClassificationFailure = errors.NewStd("classification failed")
	ErrPersistenceFailure    = errors.NewStd("persistence failed")
	ErrUnavailable           = errors.NewStd("detection store unavailable")
)

// Classification failure reasons
const (
	ReasonTimeout           = "timeout"
	ReasonUnavailable       = "unavailable"
	ReasonMalformedResponse = "malformed_response"
	ReasonRejected          = "rejected"
)

// Error is a detection pipeline failure.
//
// A persistence failure carries the classified Event (ID unset) so the
// caller can retry persistence alone with RetryToken.
type Error struct {
	Kind       ErrorKind
	Message    string
	Reason     string // classification failure reason
	Event      *Event // classified but unsaved event, persistence failures only
	RetryToken string // persistence failures only, when a retry is possible
	Err        error  // underlying cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrClassificationFailure:
		return e.Kind == KindClassificationFailure
	case ErrPersistenceFailure:
		return e.Kind == KindPersistenceFailure
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// ErrorCategory maps the kind onto the shared error categories.
func (e *Error) ErrorCategory() errors.ErrorCategory {
	switch e.Kind {
	case KindInvalidInput:
		return errors.CategoryValidation
	case KindClassificationFailure:
		return errors.CategoryClassification
	case KindPersistenceFailure, KindUnavailable:
		return errors.CategoryDatabase
	default:
		return errors.CategoryGeneric
	}
}

// InvalidInput returns an invalid-input error with a formatted message.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// ClassificationFailure returns a classification error with a reason.
func ClassificationFailure(reason string, cause error) *Error {
	return &Error{
		Kind:    KindClassificationFailure,
		Message: "image could not be classified (" + reason + ")",
		Reason:  reason,
		Err:     cause,
	}
}

// PersistenceFailure returns a persistence error carrying the unsaved event.
func PersistenceFailure(e *Event, cause error) *Error {
	return &Error{
		Kind:    KindPersistenceFailure,
		Message: "detection was classified but could not be recorded",
		Event:   e,
		Err:     cause,
	}
}

// Unavailable returns a read-path error for operation op.
func Unavailable(op string, cause error) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Message: op + " is temporarily unavailable",
		Err:     cause,
	}
}

// AsError returns the pipeline error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf classifies any error. Errors outside the pipeline are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return KindInternal
}
