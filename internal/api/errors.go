package api

import (
	"errors"
	"fmt"
)

// Kind classifies a failed backend interaction.
type Kind int

const (
	// KindNetwork covers transport failures and non-2xx responses.
	KindNetwork Kind = iota
	// KindAuth means the session is missing or expired.
	KindAuth
	// KindValidation is a rejected input, either locally or by the backend.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "network"
	}
}

var (
	ErrNetwork    = errors.New("network failure")
	ErrAuth       = errors.New("not authenticated")
	ErrValidation = errors.New("validation failure")

	ErrPasswordMismatch = &Error{Kind: KindValidation, Op: "register", Message: "Passwords do not match"}
)

// Error is returned by every Client method that fails.
type Error struct {
	Kind    Kind
	Op      string
	Status  int // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("api %s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("api %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on the kind sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// UserMessage returns the message suitable for showing in a form.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation && e.Message != "" {
		return e.Message
	}
	return fallback
}

func kindForStatus(status int) Kind {
	switch status {
	case 401, 403:
		return KindAuth
	default:
		return KindNetwork
	}
}
