package core

import "fmt"

// CommandError is a protocol-level failure: a non-2xx HTTP status or an
// explicit error answer from the device. Description comes from a small
// fixed table; unrecognized codes map to "Unknown Error".
type CommandError struct {
	Code        int
	Description string
	Payload     string // raw response body when available
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command error %d: %s", e.Code, e.Description)
}

// ErrorForStatus maps an HTTP status code to a CommandError.
func ErrorForStatus(code int) *CommandError {
	var desc string
	switch code {
	case 400:
		desc = "Bad Request"
	case 401:
		desc = "Unauthorized"
	case 500:
		desc = "Internal Server Error"
	case 503:
		desc = "Service Unavailable"
	default:
		desc = "Unknown Error"
	}
	return &CommandError{Code: code, Description: desc}
}

// NotSupported is the fixed sentinel returned synchronously when a
// capability is invoked on a protocol variant that does not implement it.
// Nothing is attempted over the wire.
func NotSupported() *CommandError {
	return ErrorForStatus(503)
}

// TransportError is a network-level failure: DNS, connection refused,
// timeout. It carries no HTTP status and is never retried for one-shot
// commands.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response body that did not match the expected
// XML/JSON shape. A missing required field names the field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse error: missing field %q", e.Field)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingField builds a ParseError for a required field absent from a
// response payload.
func MissingField(name string) *ParseError {
	return &ParseError{Field: name}
}
