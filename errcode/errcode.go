// Package errcode defines the stable error vocabulary shared by every
// control-layer package. A Code is a string newtype, comparable and
// allocation-free; E wraps a Code with an operation name, message, and
// optional cause so failures can be logged and compared without string
// matching.
package errcode

import "fmt"

// Code is a stable, caller-facing error identifier.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes. These match the error-kind vocabulary the control layer
// reports to callers, recovers from internally, or treats as fatal.
const (
	OK Code = "ok"

	InvalidState      Code = "invalid_state"
	PropertyMissing   Code = "property_missing"
	InvalidPropValue  Code = "invalid_prop_value"
	InvalidCommandName Code = "invalid_command_name"
	TypeMismatch      Code = "type_mismatch"
	AccessDenied      Code = "access_denied"
	TraitNotSupported Code = "trait_not_supported"
	UnroutedCommand   Code = "unrouted_command"
	CommandDestroyed  Code = "command_destroyed"
	CommandFailed     Code = "command_failed"
	ObjectExpected    Code = "object_expected"
	ListFull          Code = "list_full"
	TransportError    Code = "transport_error"
	CloudError        Code = "cloud_error"
	InvalidCredentials Code = "invalid_credentials"

	Error Code = "error" // generic fallback
)

// E wraps a Code with context and an optional cause chain.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error

	// HTTPStatus carries the upstream status for CloudError.
	HTTPStatus int
}

func (e *E) Error() string {
	msg := string(e.C)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an E with the given code, operation, and formatted message.
func New(c Code, op, format string, args ...any) *E {
	return &E{C: c, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an E that carries cause as its Unwrap chain.
func Wrap(c Code, op string, cause error) *E {
	return &E{C: c, Op: op, Err: cause}
}

// CloudErr builds the cloud_error{http_status} variant from §7.
func CloudErr(op string, status int, cause error) *E {
	return &E{C: CloudError, Op: op, HTTPStatus: status, Err: cause}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// Fatal panics with a contract-violation error. The control layer uses this
// only for programming errors the device's own code must never trigger
// (claiming a root token to `none`) — never for schema or routing errors,
// which are always returned. Mutating a terminal command is not fatal: it
// returns an invalid_state error.
func Fatal(op, format string, args ...any) {
	panic(New(InvalidState, op, format, args...))
}
