package model

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialNotFound is returned when a user has never registered.
	ErrCredentialNotFound = errors.New("no credential registered")

	// ErrBadCredentials is returned when the portal rejects a login.
	ErrBadCredentials = errors.New("portal rejected credentials")

	// ErrStructureChanged is returned when a non-empty calendar page contains
	// none of the markup the parser anchors on.
	ErrStructureChanged = errors.New("calendar markup not recognised")
)

// CheckError attaches an ErrorKind to an underlying failure so the cycle
// boundary can decide between asking the user to re-register, retrying
// silently, or alerting operators.
type CheckError struct {
	Kind ErrorKind
	Err  error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// NewCredentialError wraps err as ErrorKindCredential.
func NewCredentialError(err error) error {
	return &CheckError{Kind: ErrorKindCredential, Err: err}
}

// NewAuthError wraps err as ErrorKindAuth.
func NewAuthError(err error) error {
	return &CheckError{Kind: ErrorKindAuth, Err: err}
}

// NewTransientError wraps err as ErrorKindTransient.
func NewTransientError(err error) error {
	return &CheckError{Kind: ErrorKindTransient, Err: err}
}

// NewParseDegradedError wraps err as ErrorKindParseDegraded.
func NewParseDegradedError(err error) error {
	return &CheckError{Kind: ErrorKindParseDegraded, Err: err}
}

// KindOf returns the ErrorKind carried by err. Errors without a CheckError
// in their chain are ErrorKindInternal; nil is ErrorKindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorKindInternal
}
