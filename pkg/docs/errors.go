package docs

import "fmt"

// ParseError is raised only for unreadable files; malformed Markdown never
// raises.
type ParseError struct {
	File    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: %s", e.File, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(file, message string, err error) *ParseError {
	return &ParseError{File: file, Message: message, Err: err}
}
