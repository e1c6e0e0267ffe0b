package walker

import (
	"fmt"
	"strings"
)

// ParseError reports input that could not be decoded. It is scoped to one
// unit of work (a file, a URL, a CRD version); sibling units keep going.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnsupportedFeatureError notes a schema construct outside the supported
// subset. The affected type degrades to Any and the walk continues; the
// name still appears in the output.
type UnsupportedFeatureError struct {
	Feature  string
	Location string
}

func (e *UnsupportedFeatureError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("unsupported schema feature %q", e.Feature)
	}
	return fmt.Sprintf("unsupported schema feature %q at %s", e.Feature, e.Location)
}

// InvalidReferenceError reports a reference that cannot be resolved against
// the registry or any known external namespace. The referencing field
// degrades to Any.
type InvalidReferenceError struct {
	Reference string
	Location  string
}

func (e *InvalidReferenceError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("invalid reference %q", e.Reference)
	}
	return fmt.Sprintf("invalid reference %q at %s", e.Reference, e.Location)
}

// CircularDependencyError reports a reference cycle. Generated modules
// tolerate cycles (imports are lazy in the target language), so nothing
// raises it today; it exists for consumers that need acyclic output.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// GenerationError aborts the module being generated. Other modules in the
// same run still emit.
type GenerationError struct {
	Module string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate module %s: %v", e.Module, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
