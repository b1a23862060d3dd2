// Package errors provides standardized error handling for the topology editor.
// It includes error classification, standard error variables, remote rejection
// payloads, and helper functions for consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors (network, unavailable store)
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or a rejected request
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection and networking errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")
	ErrParsingFailed = errors.New("parsing failed")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrKeyNotFound        = errors.New("key not found")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Graph errors
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
	ErrNotPersisted = errors.New("node has no server id")
	ErrEdgeRefused  = errors.New("edge not allowed")
	ErrUnknownType  = errors.New("unknown node type")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// RemoteError is a rejection returned by the entity store in place of an entity.
// The message is meant to be shown to the user verbatim.
type RemoteError struct {
	Code     int
	Message  string
	Status   int
	Category string
	Op       string
}

// Error implements the error interface
func (re *RemoteError) Error() string {
	if re.Category != "" {
		return fmt.Sprintf("%s %s rejected: %s", re.Op, re.Category, re.Message)
	}
	return re.Message
}

// IsRemote reports whether err carries a store rejection and returns it
func IsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsNotFound reports whether err means the addressed entity does not exist
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound) {
		return true
	}
	if re, ok := IsRemote(err); ok {
		return re.Status == 404 || re.Code == 1101
	}
	return false
}

// UserMessage returns the text to surface to a user for err. Remote rejections
// yield the store's own message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if re, ok := IsRemote(err); ok {
		return re.Message
	}
	return err.Error()
}

// IsTransient checks if an error is transient
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	if _, ok := IsRemote(err); ok {
		return false
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrDataCorrupted) {
		return true
	}

	return false
}

// IsInvalid checks if an error is due to invalid input or a store rejection
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	if _, ok := IsRemote(err); ok {
		return true
	}

	if errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrEdgeRefused) ||
		errors.Is(err, ErrUnknownType) {
		return true
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapClass wraps err keeping the class it already carries. Remote rejections
// stay Invalid and everything unclassified becomes Transient.
func WrapClass(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	switch Classify(err) {
	case ErrorInvalid:
		return WrapInvalid(err, component, method, action)
	case ErrorFatal:
		return WrapFatal(err, component, method, action)
	default:
		return WrapTransient(err, component, method, action)
	}
}

// Join is errors.Join, re-exported so callers need a single errors import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is is errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New is errors.New
func New(text string) error {
	return errors.New(text)
}
