package schema

import "fmt"

// SchemaError reports malformed or unsupported schema text: a bad or missing
// version line, an unknown directive, or a literal that cannot be compiled
// (non-numeric range bound, invalid regex, unknown checksum algorithm).
//
// Line and Column are 1-based and zero when the position is unknown.
type SchemaError struct {
	Line   int
	Column int
	Msg    string
	Err    error
}

// Errorf builds a positioned SchemaError.
func Errorf(line, col int, format string, args ...any) *SchemaError {
	return &SchemaError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (e *SchemaError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("schema: line %d col %d: %s", e.Line, e.Column, msg)
	}
	return "schema: " + msg
}

func (e *SchemaError) Unwrap() error { return e.Err }
