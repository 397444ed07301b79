// Package errs provides the unified error type used across the gateway.
//
// Every subsystem (config, registry, policy, drivers, tools) returns *errs.Error
// so that callers can branch on the failure class without importing
// driver-specific packages. The tool surface and the HTTP transport both turn
// the Kind into the message a caller sees.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In the router, attach the target database:
//	return errs.Wrap(errs.ErrKindQueryExecutionFailed, "query failed", err).In("orders_db")
//
//	// In a caller, check the error kind:
//	if errs.IsConfirmationRequired(err) { ... }
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota

	// Generic kinds produced by drivers and argument decoding.
	ErrKindNotFound         // no rows, no object, no bucket
	ErrKindConnectionFailed // cannot reach the backend
	ErrKindTimeout          // context deadline / cancellation
	ErrKindQueryFailed      // SQL or storage operation error
	ErrKindInvalidInput     // bad arguments from the caller
	ErrKindPermissionDenied // access denied / auth failure

	// Gateway kinds.
	ErrKindConfigurationInvalid        // fatal at startup
	ErrKindNotInitialized              // registry used before Initialize
	ErrKindUnknownDatabase             // no live pool for the requested name
	ErrKindOperationNotAllowed         // verb or database not permitted
	ErrKindDestructiveOperationBlocked // DROP/TRUNCATE/DELETE disabled by toggles
	ErrKindMaintenanceDisabled         // maintenance gates closed
	ErrKindConfirmationRequired        // destructive maintenance without confirm=true
	ErrKindTableNotFound               // maintenance target table missing
	ErrKindUnsupportedOperation        // no generator column / sequence
	ErrKindQueryExecutionFailed        // driver failure, database attached
	ErrKindPoolCreationFailed          // non-fatal, database marked unavailable
)

var kindNames = map[ErrKind]string{
	ErrKindNotFound:                    "not_found",
	ErrKindConnectionFailed:            "connection_failed",
	ErrKindTimeout:                     "timeout",
	ErrKindQueryFailed:                 "query_failed",
	ErrKindInvalidInput:                "invalid_input",
	ErrKindPermissionDenied:            "permission_denied",
	ErrKindConfigurationInvalid:        "configuration_invalid",
	ErrKindNotInitialized:              "not_initialized",
	ErrKindUnknownDatabase:             "unknown_database",
	ErrKindOperationNotAllowed:         "operation_not_allowed",
	ErrKindDestructiveOperationBlocked: "destructive_operation_blocked",
	ErrKindMaintenanceDisabled:         "maintenance_disabled",
	ErrKindConfirmationRequired:        "confirmation_required",
	ErrKindTableNotFound:               "table_not_found",
	ErrKindUnsupportedOperation:        "unsupported_operation",
	ErrKindQueryExecutionFailed:        "query_execution_failed",
	ErrKindPoolCreationFailed:          "pool_creation_failed",
}

func (k ErrKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is the single error type returned by all gateway subsystems.
type Error struct {
	Kind     ErrKind
	Message  string
	Database string // logical database the failure relates to, if any
	Cause    error  // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Database != "" {
		msg = fmt.Sprintf("%s (database %q)", msg, e.Database)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// In returns e with the database name attached.
func (e *Error) In(database string) *Error {
	e.Database = database
	return e
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// KindOf extracts the ErrKind of the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// Is reports whether any *Error in the chain has the given kind.
func Is(err error, kind ErrKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool { return KindOf(err) == ErrKindNotFound }

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool { return KindOf(err) == ErrKindTimeout }

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool { return KindOf(err) == ErrKindConnectionFailed }

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool { return KindOf(err) == ErrKindInvalidInput }

func IsConfigurationInvalid(err error) bool { return KindOf(err) == ErrKindConfigurationInvalid }
func IsNotInitialized(err error) bool       { return KindOf(err) == ErrKindNotInitialized }
func IsUnknownDatabase(err error) bool      { return KindOf(err) == ErrKindUnknownDatabase }
func IsOperationNotAllowed(err error) bool  { return KindOf(err) == ErrKindOperationNotAllowed }
func IsMaintenanceDisabled(err error) bool  { return KindOf(err) == ErrKindMaintenanceDisabled }
func IsConfirmationRequired(err error) bool { return KindOf(err) == ErrKindConfirmationRequired }
func IsTableNotFound(err error) bool        { return KindOf(err) == ErrKindTableNotFound }
func IsUnsupportedOperation(err error) bool { return KindOf(err) == ErrKindUnsupportedOperation }
func IsQueryExecutionFailed(err error) bool { return KindOf(err) == ErrKindQueryExecutionFailed }
func IsPoolCreationFailed(err error) bool   { return KindOf(err) == ErrKindPoolCreationFailed }

func IsDestructiveOperationBlocked(err error) bool {
	return KindOf(err) == ErrKindDestructiveOperationBlocked
}

// IsPolicyRejection reports whether err was produced by the safety policy
// rather than by a backend.
func IsPolicyRejection(err error) bool {
	switch KindOf(err) {
	case ErrKindOperationNotAllowed, ErrKindDestructiveOperationBlocked,
		ErrKindMaintenanceDisabled, ErrKindConfirmationRequired:
		return true
	}
	return false
}
