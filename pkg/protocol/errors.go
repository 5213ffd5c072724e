package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Parse error codes.
const (
	CodeSyntax       = "syntax_error"
	CodeType         = "type_error"
	CodeMissingField = "missing_field"
	CodeDecode       = "decode_error"
)

// ParseError reports a response body that could not be decoded. Code and
// Offset are taken from the JSON decoder unmodified; Offset is -1 when the
// decoder did not report one.
type ParseError struct {
	Code   string
	Offset int64
	Field  string
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Code == CodeMissingField {
		return fmt.Sprintf("JSON parsing failed with code: %s, field %q not found", e.Code, e.Field)
	}
	return fmt.Sprintf("JSON parsing failed with code: %s, at offset %d: %v", e.Code, e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(err error) *ParseError {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ParseError{Code: CodeSyntax, Offset: syntaxErr.Offset, Err: err}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ParseError{Code: CodeType, Offset: typeErr.Offset, Err: err}
	}

	return &ParseError{Code: CodeDecode, Offset: -1, Err: err}
}

func missingField(field string) *ParseError {
	return &ParseError{Code: CodeMissingField, Offset: -1, Field: field}
}
