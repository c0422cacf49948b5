package ankiconnect

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means AnkiConnect could not be reached or
	// answered with something that was not a valid response envelope.
	ErrServiceUnavailable = errors.New("flashcard service unavailable")
	// ErrRequestRejected means AnkiConnect answered but reported an error.
	ErrRequestRejected = errors.New("flashcard service rejected request")
)

// Error describes a failed AnkiConnect action. Kind is one of the package
// sentinels, so callers can use errors.Is without inspecting Message.
type Error struct {
	Action  string
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("%s: %v", e.Action, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Action, e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(action string, err error) *Error {
	return &Error{Action: action, Kind: ErrServiceUnavailable, Err: err}
}

func rejected(action, message string) *Error {
	return &Error{Action: action, Kind: ErrRequestRejected, Message: message}
}
