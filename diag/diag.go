// Package diag implements structured diagnostic reports: severity,
// code, source-position, message, note. It is the
// Go realization of original_source/src/report.hpp's Report /
// ReportBuilder / ReportContext trio, adapted from a builder-pattern API
// over an output stream to an idiomatic Go error type plus a small
// collecting Context, since Go diagnostics are values passed up the call
// stack rather than printed in place.
package diag

import (
	"fmt"

	"github.com/desfreng/netlist/token"
)

// Severity distinguishes a fatal report from one that still lets the
// pipeline continue.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Numeric codes, mirroring original_source's Report.code (e.g. code 2 for
// an unknown lexer character). Used by cmd/netlist as the process exit
// code for the first fatal diagnostic.
const (
	CodeLexUnknownChar = 2

	CodeParseUnexpectedToken = 10
	CodeParseMalformedLiteral = 11
	CodeParseDuplicateDecl   = 12
	CodeParseRedundantIO     = 13
	CodeParseUndeclared      = 14
	CodeParseWidthOverflow   = 15
	CodeParseMissingWidth    = 16
	CodeParseBusTooWide      = 17
	CodeParseDuplicateAssign = 18

	CodeTypeWidthMismatch = 20
	CodeTypeBadIndex      = 21

	CodeSemaMissingEquation = 30
	CodeSemaAssignToInput   = 31
	CodeSemaCombLoop        = 32
	CodeSemaUnusedVar       = 33

	CodeRuntimeInputOverflow = 40
	CodeRuntimeMemoryImage   = 41

	CodeFileIO = 60
)

// Diagnostic is a single structured report. It implements error so it can
// flow through normal Go error handling and still carry source position,
// severity, a numeric code and an optional note.
type Diagnostic struct {
	Severity Severity
	Code     int
	Pos      token.Pos
	Message  string
	Note     string
}

func (d *Diagnostic) Error() string {
	if d.Note != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", d.Pos, d.Severity, d.Message, d.Note)
	}
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// New builds a Diagnostic. note may be empty.
func New(severity Severity, code int, pos token.Pos, note string, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Severity: severity,
		Code:     code,
		Pos:      pos,
		Message:  fmt.Sprintf(format, args...),
		Note:     note,
	}
}

// Errorf is shorthand for New(Error, code, pos, "", format, args...).
func Errorf(code int, pos token.Pos, format string, args ...interface{}) *Diagnostic {
	return New(Error, code, pos, "", format, args...)
}

// Warnf is shorthand for New(Warning, code, pos, "", format, args...).
func Warnf(code int, pos token.Pos, format string, args ...interface{}) *Diagnostic {
	return New(Warning, code, pos, "", format, args...)
}

// Context collects non-fatal diagnostics (warnings) produced while
// running a pipeline stage, mirroring original_source's ReportContext
// acting as the sink every Report is built against.
type Context struct {
	Warnings []*Diagnostic
}

// Report appends d to the collected diagnostics. Fatal diagnostics are
// not collected here: callers return them as errors instead, since the
// lexer, parser and scheduler all fail fast on the first fatal error.
func (c *Context) Report(d *Diagnostic) {
	c.Warnings = append(c.Warnings, d)
}
