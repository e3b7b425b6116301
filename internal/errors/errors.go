// Package errors provides error classification and handling for tplinker.
package errors

import (
	stderrors "errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

// ErrorType represents the classification of errors
type ErrorType int

const (
	// SetupErrorType represents invalid input or configuration, detected before any I/O
	SetupErrorType ErrorType = iota

	// ConnectionErrorType represents network errors reaching a device
	ConnectionErrorType

	// TimeoutErrorType represents timeout-related errors
	TimeoutErrorType

	// ProtocolErrorType represents malformed or undecodable device replies
	ProtocolErrorType

	// DeviceErrorType represents a device that answered but rejected the request
	DeviceErrorType

	// CapabilityErrorType represents an operation the resolved device kind does not support
	CapabilityErrorType

	// UnknownErrorType represents unclassified errors
	UnknownErrorType
)

// String returns a string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case SetupErrorType:
		return "setup"
	case ConnectionErrorType:
		return "connection"
	case TimeoutErrorType:
		return "timeout"
	case ProtocolErrorType:
		return "protocol"
	case DeviceErrorType:
		return "device"
	case CapabilityErrorType:
		return "capability"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with classification information
type ClassifiedError struct {
	Type     ErrorType
	Original error
	Message  string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	switch {
	case ce.Message != "" && ce.Original != nil:
		return ce.Message + ": " + ce.Original.Error()
	case ce.Message != "":
		return ce.Message
	case ce.Original != nil:
		return ce.Original.Error()
	}
	return "unknown error"
}

// Unwrap returns the original error for error unwrapping
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// ClassifyError analyzes an error and returns its classification. Errors that are
// already classified anywhere in their chain keep that classification.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return &ClassifiedError{Type: TimeoutErrorType, Original: err}
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return &ClassifiedError{Type: ConnectionErrorType, Original: err}
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case isTimeoutError(errStr):
		return &ClassifiedError{Type: TimeoutErrorType, Original: err}
	case isConnectionError(errStr):
		return &ClassifiedError{Type: ConnectionErrorType, Original: err}
	}

	return &ClassifiedError{Type: UnknownErrorType, Original: err}
}

// TypeOf returns the classification of err, or UnknownErrorType for nil
func TypeOf(err error) ErrorType {
	if ce := ClassifyError(err); ce != nil {
		return ce.Type
	}
	return UnknownErrorType
}

// isTimeoutError checks if an error is related to timeouts
func isTimeoutError(errStr string) bool {
	timeoutKeywords := []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}

	for _, keyword := range timeoutKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

// isConnectionError checks if an error is related to network connectivity
func isConnectionError(errStr string) bool {
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"network unreachable",
		"no route to host",
		"host unreachable",
		"broken pipe",
		"unexpected eof",
		"no such host",
	}

	for _, keyword := range connectionKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

// NewSetupError creates a new setup error
func NewSetupError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: SetupErrorType, Original: original, Message: message}
}

// NewConnectionError creates a new connection error
func NewConnectionError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: ConnectionErrorType, Original: original, Message: message}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: TimeoutErrorType, Original: original, Message: message}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: ProtocolErrorType, Original: original, Message: message}
}

// NewDeviceError creates a new device error
func NewDeviceError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: DeviceErrorType, Original: original, Message: message}
}

// NewCapabilityError creates a new capability error
func NewCapabilityError(message string) *ClassifiedError {
	return &ClassifiedError{Type: CapabilityErrorType, Message: message}
}

// Network classifies an error raised while talking to a device: timeouts stay
// timeouts, everything else becomes a connection error.
func Network(message string, err error) *ClassifiedError {
	if TypeOf(err) == TimeoutErrorType {
		return NewTimeoutError(message, err)
	}
	return NewConnectionError(message, err)
}

// ErrorCollector collects and categorizes multiple errors
type ErrorCollector struct {
	errors map[ErrorType][]error
	count  int
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make(map[ErrorType][]error),
	}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}

	classified := ClassifyError(err)
	ec.errors[classified.Type] = append(ec.errors[classified.Type], err)
	ec.count++
}

// Count returns the total number of errors
func (ec *ErrorCollector) Count() int {
	return ec.count
}

// CountByType returns the number of errors of a specific type
func (ec *ErrorCollector) CountByType(errorType ErrorType) int {
	return len(ec.errors[errorType])
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	return ec.count > 0
}

// Summary returns a summary of all collected errors
func (ec *ErrorCollector) Summary() string {
	if ec.count == 0 {
		return "no errors"
	}

	types := make([]ErrorType, 0, len(ec.errors))
	for errorType := range ec.errors {
		types = append(types, errorType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	parts := make([]string, 0, len(types))
	for _, errorType := range types {
		parts = append(parts, fmt.Sprintf("%d %s", len(ec.errors[errorType]), errorType.String()))
	}

	return fmt.Sprintf("total: %d errors (%s)", ec.count, strings.Join(parts, ", "))
}
