package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeAuthentication        = "AUTHENTICATION_ERROR"
	CodeProtocolShape         = "PROTOCOL_SHAPE_ERROR"
	CodeTransport             = "TRANSPORT_ERROR"
	CodeMalformedStreamRecord = "MALFORMED_STREAM_RECORD"
	CodeRemoteStatus          = "REMOTE_STATUS_ERROR"
)

// Sentinels for errors.Is matching. Only the code is compared.
var (
	ErrAuthentication        = &ClientError{Code: CodeAuthentication, Message: "authentication failed"}
	ErrProtocolShape         = &ClientError{Code: CodeProtocolShape, Message: "unexpected response shape"}
	ErrTransport             = &ClientError{Code: CodeTransport, Message: "transport failure"}
	ErrMalformedStreamRecord = &ClientError{Code: CodeMalformedStreamRecord, Message: "malformed stream record"}
	ErrRemoteStatus          = &ClientError{Code: CodeRemoteStatus, Message: "unexpected remote status"}
)

// ClientError is the error type returned by every client operation
type ClientError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Details    any    `json:"details,omitempty"`
	Err        error  `json:"-"`
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ClientError with the same code
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails adds details to the error
func (e *ClientError) WithDetails(details any) *ClientError {
	e.Details = details
	return e
}

// WithStatus records the HTTP status the remote answered with
func (e *ClientError) WithStatus(status int) *ClientError {
	e.StatusCode = status
	return e
}

// NewError creates a new client error
func NewError(code, message string, cause error) *ClientError {
	return &ClientError{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// NewAuthenticationError creates an error for a failed or missing credential exchange
func NewAuthenticationError(message string, cause error) *ClientError {
	return NewError(CodeAuthentication, message, cause)
}

// NewProtocolShapeError creates an error for a JSON body that lacks the expected shape
func NewProtocolShapeError(message string, cause error) *ClientError {
	return NewError(CodeProtocolShape, message, cause)
}

// NewTransportError creates an error for a network call that failed before a response arrived
func NewTransportError(message string, cause error) *ClientError {
	return NewError(CodeTransport, message, cause)
}

// NewMalformedStreamRecordError creates an error for a stream line that could not be decoded
func NewMalformedStreamRecordError(line int, cause error) *ClientError {
	return NewError(CodeMalformedStreamRecord, fmt.Sprintf("line %d is not a valid JSON record", line), cause).
		WithDetails(map[string]int{"line": line})
}

// NewRemoteStatusError creates an error for a non-2xx response
func NewRemoteStatusError(status int, body []byte) *ClientError {
	const maxSnippet = 256
	snippet := string(body)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return NewError(CodeRemoteStatus, fmt.Sprintf("remote answered with status %d", status), nil).
		WithStatus(status).
		WithDetails(snippet)
}

// As finds the first ClientError in err's chain
func As(err error) (*ClientError, bool) {
	var clientErr *ClientError
	if stderrors.As(err, &clientErr) {
		return clientErr, true
	}
	return nil, false
}

// Is reports whether err carries the same code as target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// GetErrorCode extracts the error code, returns "UNKNOWN_ERROR" if err is not a ClientError
func GetErrorCode(err error) string {
	if clientErr, ok := As(err); ok {
		return clientErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetStatusCode extracts the remote HTTP status, returns 0 when none was received
func GetStatusCode(err error) int {
	if clientErr, ok := As(err); ok {
		return clientErr.StatusCode
	}
	return 0
}
