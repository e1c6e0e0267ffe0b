// Package codegen renders the intermediate representation as Nickel source
// files.
package codegen

import (
	"fmt"
	"strings"
)

// indentUnit is the Nickel house indentation step.
const indentUnit = "  "

// Emitter accumulates Nickel source line by line at a tracked indentation.
type Emitter struct {
	buf    strings.Builder
	prefix string
}

// NewEmitter returns an empty emitter at column zero.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Line writes one line at the current indentation. Formatting only runs
// when arguments are given, so literal lines pass through untouched. An
// empty line stays a bare newline and never carries trailing spaces.
func (e *Emitter) Line(format string, args ...any) {
	line := format
	if len(args) > 0 {
		line = fmt.Sprintf(format, args...)
	}
	if line != "" {
		e.buf.WriteString(e.prefix)
		e.buf.WriteString(line)
	}
	e.buf.WriteByte('\n')
}

// Comment writes text as "# " comment lines, one output line per input
// line.
func (e *Emitter) Comment(text string) {
	for _, line := range strings.Split(text, "\n") {
		e.Line("# %s", line)
	}
}

// Blank writes an empty line.
func (e *Emitter) Blank() {
	e.buf.WriteByte('\n')
}

// Indent shifts subsequent lines one level right.
func (e *Emitter) Indent() {
	e.prefix += indentUnit
}

// Dedent shifts back one level, clamped at column zero.
func (e *Emitter) Dedent() {
	if len(e.prefix) >= len(indentUnit) {
		e.prefix = e.prefix[:len(e.prefix)-len(indentUnit)]
	}
}

// String returns the accumulated source.
func (e *Emitter) String() string {
	return e.buf.String()
}

// Len returns the accumulated byte length.
func (e *Emitter) Len() int {
	return e.buf.Len()
}
