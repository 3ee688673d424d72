package eavsearch

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation marks a malformed search request.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeReference marks a reference to something the schema does not know.
	ErrorTypeReference ErrorType = "reference"
	// ErrorTypeInvalidArgument marks a programming error by the caller, such as
	// asking the join registry for a filter that was never registered.
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	ErrorTypeQuery           ErrorType = "query"
	ErrorTypeExecution       ErrorType = "execution"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeUnavailable     ErrorType = "unavailable"
	ErrorTypeInternal        ErrorType = "internal"
)

// SearchError is the error raised by every stage of search compilation and
// execution.
type SearchError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SearchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] property '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *SearchError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to a SearchError
func (e *SearchError) WithDetail(key string, value any) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a SearchError
func (e *SearchError) WithCause(cause error) *SearchError {
	e.Cause = cause
	return e
}

// WithField adds property context to a SearchError
func (e *SearchError) WithField(field string) *SearchError {
	e.Field = field
	return e
}

const (
	// Malformed request
	ErrCodeNestingTooDeep  = "NESTING_TOO_DEEP"
	ErrCodeUnknownOperator = "UNKNOWN_OPERATOR"
	ErrCodeInvalidLogic    = "INVALID_LOGIC"
	ErrCodeInvalidOperand  = "INVALID_OPERAND"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"

	// Unknown reference
	ErrCodeUnknownProperty     = "UNKNOWN_PROPERTY"
	ErrCodeUnknownJoinFilter   = "UNKNOWN_JOIN_FILTER"
	ErrCodeAttributeNotFound   = "ATTRIBUTE_NOT_FOUND"
	ErrCodePrimaryKeyCondition = "PRIMARY_KEY_CONDITION"
	ErrCodeNotSelectable       = "NOT_SELECTABLE"

	// No-op query
	ErrCodeNoConditions = "NO_CONDITIONS"

	// Schema and configuration
	ErrCodeSchemaInvalid  = "SCHEMA_INVALID"
	ErrCodeSchemaNotFound = "SCHEMA_NOT_FOUND"
	ErrCodeMissingPrimary = "MISSING_PRIMARY_KEY"

	// Execution
	ErrCodeQueryExecution = "QUERY_EXECUTION_ERROR"
	ErrCodeResultScan     = "RESULT_SCAN_ERROR"
	ErrCodeCircuitOpen    = "CIRCUIT_OPEN"
)

// NewSearchError creates a new SearchError
func NewSearchError(errorType ErrorType, code, message string) *SearchError {
	return &SearchError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewNestingTooDeepError reports a property path with more than one dot.
func NewNestingTooDeepError(code string) *SearchError {
	return NewSearchError(ErrorTypeValidation, ErrCodeNestingTooDeep, "nesting too deep").WithField(code)
}

// NewUnknownOperatorError reports an operator outside the supported set.
func NewUnknownOperatorError(op string) *SearchError {
	return NewSearchError(ErrorTypeValidation, ErrCodeUnknownOperator, fmt.Sprintf("unknown operator %q", op))
}

// NewInvalidLogicError reports a condition group keyed by something other than and/or.
func NewInvalidLogicError(logic string) *SearchError {
	return NewSearchError(ErrorTypeValidation, ErrCodeInvalidLogic, fmt.Sprintf("condition group must be 'and' or 'or', got %q", logic))
}

// NewInvalidOperandError reports a value that does not fit its operator.
func NewInvalidOperandError(code, message string) *SearchError {
	return NewSearchError(ErrorTypeValidation, ErrCodeInvalidOperand, message).WithField(code)
}

// NewUnknownPropertyError reports a property that is neither a schema member
// nor a registered join filter.
func NewUnknownPropertyError(code string) *SearchError {
	return NewSearchError(ErrorTypeReference, ErrCodeUnknownProperty, "unknown property").WithField(code)
}

// NewUnknownJoinFilterError reports a join filter requested by a name that was
// never registered.
func NewUnknownJoinFilterError(name string) *SearchError {
	return NewSearchError(ErrorTypeInvalidArgument, ErrCodeUnknownJoinFilter, fmt.Sprintf("join filter %q is not registered", name))
}

// NewAttributeNotFoundError reports attribute codes missing from the definition table.
func NewAttributeNotFoundError(codes []string) *SearchError {
	return NewSearchError(ErrorTypeReference, ErrCodeAttributeNotFound, "attribute codes not defined").
		WithDetail("codes", codes)
}

// NewNoConditionsError is raised instead of silently scanning the whole table.
func NewNoConditionsError() *SearchError {
	return NewSearchError(ErrorTypeQuery, ErrCodeNoConditions, "at least one condition required")
}

// NewMissingPrimaryKeyError reports a schema configured without a primary key.
func NewMissingPrimaryKeyError(table string) *SearchError {
	return NewSearchError(ErrorTypeInternal, ErrCodeMissingPrimary, fmt.Sprintf("schema for table %q has no primary key", table))
}

// NewSchemaNotFoundError creates a schema not found error
func NewSchemaNotFoundError(location string) *SearchError {
	return NewSearchError(ErrorTypeNotFound, ErrCodeSchemaNotFound, fmt.Sprintf("schema document not found: %s", location))
}

// NewQueryExecutionError wraps a database failure.
func NewQueryExecutionError(message string, cause error) *SearchError {
	return NewSearchError(ErrorTypeExecution, ErrCodeQueryExecution, message).WithCause(cause)
}

// IsSearchError reports whether err carries a SearchError with the given code.
func IsSearchError(err error, code string) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsValidationError checks if error is a malformed-request error
func IsValidationError(err error) bool {
	return hasErrorType(err, ErrorTypeValidation)
}

// IsReferenceError checks if error is an unknown-reference error
func IsReferenceError(err error) bool {
	return hasErrorType(err, ErrorTypeReference) || hasErrorType(err, ErrorTypeInvalidArgument)
}

// IsInternalError checks if error is a configuration bug
func IsInternalError(err error) bool {
	return hasErrorType(err, ErrorTypeInternal)
}

// IsClientError reports whether the caller can fix err by changing the request.
func IsClientError(err error) bool {
	return IsValidationError(err) || IsReferenceError(err) || hasErrorType(err, ErrorTypeQuery)
}

func hasErrorType(err error, t ErrorType) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Type == t
	}
	return false
}
