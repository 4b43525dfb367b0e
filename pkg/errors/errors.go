// Package errors provides structured error handling for Strata. Failures are
// typed, inspectable values: a component that detects a problem wraps it with
// a category and context details and returns it to its immediate caller.
// Nothing in the core is logged-and-continued, since a partially decoded or
// partially written file is worse than a hard failure.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors.
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents connection errors.
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeFile represents file operation errors.
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeData represents data processing errors.
	ErrorTypeData ErrorType = "data"

	// ErrorTypeUnsupportedType signals a physical/logical type pair (read)
	// or an internal DataType (write) with no mapping to the columnar
	// format. Fatal; no partial schema is returned.
	ErrorTypeUnsupportedType ErrorType = "unsupported_type"
	// ErrorTypeFieldNotFound signals a projection field absent from the
	// discovered schema. Fatal for that read operation.
	ErrorTypeFieldNotFound ErrorType = "field_not_found"
	// ErrorTypeDecimalOverflow signals an unscaled decimal value that does
	// not fit its field's fixed byte width on write. Fatal; the write is
	// aborted before a corrupt record is flushed.
	ErrorTypeDecimalOverflow ErrorType = "decimal_overflow"
	// ErrorTypeMalformedRecord signals a physical record that cannot be
	// decoded into the expected shape. Fatal; the reader does not attempt
	// to skip and continue.
	ErrorTypeMalformedRecord ErrorType = "malformed_record"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. It returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the original stack.
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// UnsupportedType builds the typed failure for a type with no mapping rule.
// The physical and annotation arguments describe the external pair on read;
// on write, physical carries the internal type name and annotation is empty.
func UnsupportedType(physical, annotation string) *Error {
	msg := fmt.Sprintf("no type mapping for %s", physical)
	if annotation != "" {
		msg = fmt.Sprintf("no type mapping for %s annotated %s", physical, annotation)
	}
	e := New(ErrorTypeUnsupportedType, msg)
	e.WithDetail("physical_type", physical)
	if annotation != "" {
		e.WithDetail("annotation", annotation)
	}
	return e
}

// FieldNotFound builds the typed failure for a projection field that does
// not exist in the discovered schema.
func FieldNotFound(name string) *Error {
	return New(ErrorTypeFieldNotFound, fmt.Sprintf("field %q not found in schema", name)).
		WithDetail("field", name)
}

// DecimalOverflow builds the typed failure for an unscaled decimal value
// that does not fit the field's fixed byte width.
func DecimalOverflow(field string, byteWidth int) *Error {
	return New(ErrorTypeDecimalOverflow,
		fmt.Sprintf("unscaled value of field %q does not fit in %d bytes", field, byteWidth)).
		WithDetail("field", field).
		WithDetail("byte_width", byteWidth)
}

// MalformedRecord wraps a decode failure for a physical record that cannot
// be assembled into the expected row shape.
func MalformedRecord(err error, context string) *Error {
	if err == nil {
		return New(ErrorTypeMalformedRecord, context)
	}
	return Wrap(err, ErrorTypeMalformedRecord, context)
}

// captureStack captures the current call stack.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
