package board

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes board errors.
type ErrorCode string

const (
	// ErrCodeMalformedArguments indicates a recognized command with bad arguments.
	ErrCodeMalformedArguments ErrorCode = "MALFORMED_ARGUMENTS"

	// ErrCodeUnknownCommand indicates a !-prefixed token that is not a command.
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"

	// ErrCodeNotFound indicates a referenced post or subscription is absent or expired.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodePayloadTooLarge indicates a body over the configured maximum.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// ErrCodeStoreUnavailable indicates storage failed after bounded retries.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeTransportSendFailure indicates a single outbound message failed.
	ErrCodeTransportSendFailure ErrorCode = "TRANSPORT_SEND_FAILURE"

	// ErrCodeDuplicateInstance indicates another daemon held the store lock.
	ErrCodeDuplicateInstance ErrorCode = "DUPLICATE_INSTANCE"
)

// Error is a classified board error.
type Error struct {
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Token is the offending input token, when there is one.
	Token string

	// Usage is a grammar hint for MalformedArguments.
	Usage string

	// PostID identifies the missing post for NotFound.
	PostID int64

	// Size and Limit describe PayloadTooLarge.
	Size  int
	Limit int

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Token != "" {
		msg += fmt.Sprintf(" (token=%q)", e.Token)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a *Error with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// MalformedArguments creates an error for a recognized command with bad arguments.
func MalformedArguments(command, token, usage string) *Error {
	return &Error{
		Code:    ErrCodeMalformedArguments,
		Message: fmt.Sprintf("invalid arguments for %s", command),
		Token:   token,
		Usage:   usage,
	}
}

// UnknownCommand creates an error for an unrecognized command token.
func UnknownCommand(token string) *Error {
	return &Error{
		Code:    ErrCodeUnknownCommand,
		Message: "unknown command",
		Token:   token,
	}
}

// NotFound creates an error for an absent or expired post.
func NotFound(postID int64) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("post #%d not found", postID),
		PostID:  postID,
	}
}

// PayloadTooLarge creates an error for a body over the byte limit.
func PayloadTooLarge(size, limit int) *Error {
	return &Error{
		Code:    ErrCodePayloadTooLarge,
		Message: fmt.Sprintf("body is %d bytes, limit is %d", size, limit),
		Size:    size,
		Limit:   limit,
	}
}

// StoreUnavailable wraps a storage failure that survived retries.
func StoreUnavailable(err error) *Error {
	return &Error{
		Code:    ErrCodeStoreUnavailable,
		Message: "store unavailable",
		Err:     err,
	}
}

// TransportSendFailure wraps a failed send to one recipient.
func TransportSendFailure(recipient string, err error) *Error {
	return &Error{
		Code:    ErrCodeTransportSendFailure,
		Message: "send failed",
		Token:   recipient,
		Err:     err,
	}
}

// DuplicateInstance describes a previous daemon displaced at startup.
func DuplicateInstance(pid int) *Error {
	return &Error{
		Code:    ErrCodeDuplicateInstance,
		Message: fmt.Sprintf("another instance (pid %d) held the store", pid),
	}
}
