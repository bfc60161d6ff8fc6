package protocol

import "errors"

// Error codes sent to clients.
const (
	CodeInvalidClassroom    = "INVALID_CLASSROOM"
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeNotRegistered       = "NOT_REGISTERED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is a client-facing error. Handlers return it to choose the code of
// the error reply; any other error is reported as [CodeInternal].
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError returns an [Error] with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Type: TypeError, Code: code, Message: message}
}

func (e *Error) Error() string {
	return "protocol: " + e.Code + ": " + e.Message
}

// ErrorReply converts any error into the message sent to the client.
// Internal error details are not leaked.
func ErrorReply(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return NewError(pe.Code, pe.Message)
	}
	return NewError(CodeInternal, "internal server error")
}
