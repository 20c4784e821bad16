package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryFormat         ErrorCategory = "format"
	CategorySanitize       ErrorCategory = "sanitize"
	CategoryExtraction     ErrorCategory = "extraction"
	CategoryClassification ErrorCategory = "classification"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileTooLarge   ErrorCode = "file_too_large"
	CodeTempDirError   ErrorCode = "temp_dir_error"

	// Format errors (terminal, per the container extractor contract)
	CodeFormatUnrecognized ErrorCode = "format_unrecognized"
	CodeContainerCorrupted ErrorCode = "container_corrupted"
	CodeEncodingError      ErrorCode = "encoding_error"

	// Sanitizer / XML structure errors
	CodeMalformedXML  ErrorCode = "malformed_xml"
	CodeInvalidEntity ErrorCode = "invalid_entity"

	// Extraction errors
	CodeNoDataFound   ErrorCode = "no_data_found"
	CodeStreamAborted ErrorCode = "stream_aborted"

	// Classification conditions (soft; reported via alerts, never raised)
	CodeClassificationIncomplete ErrorCode = "classification_incomplete"
	CodeFieldParseFailure        ErrorCode = "field_parse_failure"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError   ErrorCode = "unexpected_error"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeCancelled         ErrorCode = "cancelled"
)

// ReexportHint is the remediation advice attached to every terminal format
// error. Real-world .tbk backups are frequently unreadable without Tally
// itself; a fresh XML export from the ERP is the reliable path.
const ReexportHint = "re-export the data as XML from Tally (Gateway of Tally > Display > List of Accounts > Export) and upload the XML file instead"

// TallyError is the base error type for all application errors
type TallyError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *TallyError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *TallyError) Unwrap() error {
	return e.Cause
}

// IsTerminal reports whether the error ends the parse operation. Soft
// classification conditions are carried in the summary output instead of
// aborting, so they are never terminal.
func (e *TallyError) IsTerminal() bool {
	switch e.Code {
	case CodeClassificationIncomplete, CodeFieldParseFailure:
		return false
	default:
		return true
	}
}

// GetExitCode returns an appropriate exit code for the error
func (e *TallyError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryFormat, CategorySanitize:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryExtraction, CategoryClassification, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// HTTPStatus maps the error to a response class for the upload endpoints.
// Format, sanitizer and no-data failures are the caller's problem (bad file);
// everything else is ours.
func (e *TallyError) HTTPStatus() int {
	switch e.Code {
	case CodeFormatUnrecognized, CodeContainerCorrupted, CodeEncodingError,
		CodeMalformedXML, CodeInvalidEntity, CodeNoDataFound, CodeFileTooLarge:
		return 422
	case CodeFileNotFound, CodeFilePermission:
		return 404
	case CodeInvalidConfig, CodeMissingConfig:
		return 400
	default:
		return 500
	}
}

// WithContext adds context information to the error
func (e *TallyError) WithContext(key string, value interface{}) *TallyError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *TallyError) WithSuggestion(suggestion string) *TallyError {
	e.Suggestion = suggestion
	return e
}

// New creates a new TallyError
func New(category ErrorCategory, code ErrorCode, message string) *TallyError {
	return &TallyError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with TallyError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *TallyError {
	if err == nil {
		return nil
	}

	return &TallyError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *TallyError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("backup file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing backup file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileTooLarge:
		message = fmt.Sprintf("backup file exceeds the maximum accepted size: %s", path)
		suggestion = "split the export by period or company, or export ledgers and vouchers separately"
	case CodeTempDirError:
		message = fmt.Sprintf("failed to prepare working directory for: %s", path)
		suggestion = "ensure the temp directory is writable and has free space"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *TallyError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// FormatError creates a container/format detection error. attempted lists the
// extraction methods that were tried before giving up; companyHint is a
// human-readable company name recovered from the binary, if any.
func FormatError(code ErrorCode, path string, attempted []string, companyHint string, err error) *TallyError {
	var message string

	switch code {
	case CodeFormatUnrecognized:
		if companyHint != "" {
			message = fmt.Sprintf("unrecognized backup format for %s (appears to contain data for %q)", path, companyHint)
		} else {
			message = fmt.Sprintf("unrecognized backup format for %s", path)
		}
	case CodeContainerCorrupted:
		message = fmt.Sprintf("backup container is corrupted: %s", path)
	case CodeEncodingError:
		message = fmt.Sprintf("could not decode backup content under any supported encoding: %s", path)
	default:
		message = fmt.Sprintf("format error: %s", path)
	}

	var result *TallyError
	if err != nil {
		result = Wrap(err, CategoryFormat, code, message)
	} else {
		result = New(CategoryFormat, code, message)
	}

	result = result.
		WithSuggestion(ReexportHint).
		WithContext("file_path", path)
	if len(attempted) > 0 {
		result = result.WithContext("methods_tried", strings.Join(attempted, ", "))
	}
	if companyHint != "" {
		result = result.WithContext("company_hint", companyHint)
	}
	return result
}

// SanitizeError creates an XML sanitization/parse error with source position
func SanitizeError(code ErrorCode, line, column int, err error) *TallyError {
	var message string
	var suggestion string

	switch code {
	case CodeMalformedXML:
		if line > 0 {
			message = fmt.Sprintf("XML is malformed at line %d, column %d and could not be repaired", line, column)
		} else {
			message = "XML is malformed and could not be repaired"
		}
		suggestion = ReexportHint
	case CodeInvalidEntity:
		message = fmt.Sprintf("invalid character reference at line %d", line)
		suggestion = "remove or correct the invalid numeric entity"
	default:
		message = "XML sanitization failed"
		suggestion = ReexportHint
	}

	var result *TallyError
	if err != nil {
		result = Wrap(err, CategorySanitize, code, message)
	} else {
		result = New(CategorySanitize, code, message)
	}

	result = result.WithSuggestion(suggestion)
	if line > 0 {
		result = result.WithContext("line", line)
	}
	if column > 0 {
		result = result.WithContext("column", column)
	}
	return result
}

// ExtractionError creates a record-extraction error
func ExtractionError(code ErrorCode, source string, err error) *TallyError {
	var message string
	var suggestion string

	switch code {
	case CodeNoDataFound:
		message = fmt.Sprintf("parsed %s successfully but found no companies or ledgers", source)
		suggestion = "verify the export includes masters (ledgers and groups), not just configuration"
	case CodeStreamAborted:
		message = fmt.Sprintf("streaming extraction aborted for %s", source)
		suggestion = "retry the upload; if it persists, re-export the file"
	default:
		message = fmt.Sprintf("record extraction failed for %s", source)
		suggestion = "check the export content and try again"
	}

	var result *TallyError
	if err != nil {
		result = Wrap(err, CategoryExtraction, code, message)
	} else {
		result = New(CategoryExtraction, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *TallyError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *TallyError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *TallyError {
	var message string
	var suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeResourceExhausted:
		message = fmt.Sprintf("resource exhausted during %s", operation)
		suggestion = "try a smaller file or increase system resources"
	case CodeCancelled:
		message = fmt.Sprintf("%s cancelled", operation)
		suggestion = "retry the operation"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	var result *TallyError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// Utility functions

// IsTallyError checks if an error is a TallyError
func IsTallyError(err error) bool {
	_, ok := err.(*TallyError)
	return ok
}

// AsTallyError extracts a TallyError from an error chain
func AsTallyError(err error) (*TallyError, bool) {
	var tallyErr *TallyError
	if errors.As(err, &tallyErr) {
		return tallyErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code ErrorCode) bool {
	if tallyErr, ok := AsTallyError(err); ok {
		return tallyErr.Code == code
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a TallyError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *TallyError {
	if err == nil {
		return nil
	}

	if tallyErr, ok := AsTallyError(err); ok {
		return tallyErr
	}

	return Wrap(err, category, code, message)
}
