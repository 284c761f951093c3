package pcd

import (
	"errors"
	"fmt"
)

// Error codes carried by FormatError.
const (
	CodeMissingKey      = "missing-key"
	CodeLengthMismatch  = "length-mismatch"
	CodeUnknownEncoding = "unknown-encoding"
	CodeInvalidValue    = "invalid-value"
	CodePointsMismatch  = "points-mismatch"
	CodeDuplicateField  = "duplicate-field"
	CodeASCIIParse      = "ascii-parse"
	CodeSizeMismatch    = "size-mismatch"
	CodeTruncatedRecord = "truncated-record"
)

// Error codes carried by CorruptDataError.
const (
	CodeDecompressSizeMismatch = "decompress-size-mismatch"
	CodeDecompressFailed       = "decompress-failed"
)

// Error codes carried by ValidationError.
const (
	CodeBadMatrix          = "bad-matrix"
	CodeSingularMatrix     = "singular-matrix"
	CodeBadBox             = "bad-box"
	CodeSchemaMismatch     = "schema-mismatch"
	CodeEmptyInput         = "empty-input"
	CodeNoValidSources     = "no-valid-sources"
	CodeNoInferableFormat  = "no-inferable-format"
	CodeUnknownFormat      = "unknown-format"
	CodeUnknownMode        = "unknown-mode"
	CodeMissingCoordinates = "missing-coordinates"
	CodeUnknownField       = "unknown-field"
)

// FormatError reports malformed input: a bad header, an unknown encoding
// token, an unparsable ascii payload or a payload of the wrong size.
type FormatError struct {
	Code   string
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return "pcd: format error: " + e.Code
	}
	return fmt.Sprintf("pcd: format error: %s: %s", e.Code, e.Detail)
}

// CorruptDataError reports a compressed block that does not decompress to
// the size its prefix announces.
type CorruptDataError struct {
	Code   string
	Detail string
}

func (e *CorruptDataError) Error() string {
	if e.Detail == "" {
		return "pcd: corrupt data: " + e.Code
	}
	return fmt.Sprintf("pcd: corrupt data: %s: %s", e.Code, e.Detail)
}

// ValidationError reports caller input rejected before any work is done:
// bad matrices, schema mismatches, empty fusion input and so on.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "pcd: validation error: " + e.Code
	}
	return fmt.Sprintf("pcd: validation error: %s: %s", e.Code, e.Detail)
}

func formatErrorf(code, format string, args ...interface{}) error {
	return &FormatError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func corruptErrorf(code, format string, args ...interface{}) error {
	return &CorruptDataError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError. It is exported so that the geometry,
// fusion and binrec packages report validation failures with the same type.
func Validationf(code, format string, args ...interface{}) error {
	return &ValidationError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Formatf builds a FormatError for packages that parse formats layered on
// top of the PCD container.
func Formatf(code, format string, args ...interface{}) error {
	return formatErrorf(code, format, args...)
}

// ErrorCode returns the Code of the first FormatError, CorruptDataError or
// ValidationError in err's chain, or "" when there is none.
func ErrorCode(err error) string {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ce *CorruptDataError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
