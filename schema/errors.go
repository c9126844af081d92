package schema

import (
	"fmt"
	"strings"
)

// LoadError means the schema file could not be read, parsed or compiled.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load schema from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Violation is a single failed keyword.
type Violation struct {
	InstanceLocation string
	KeywordLocation  string
	Message          string
}

func (v Violation) String() string {
	loc := v.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, v.Message)
}

// MismatchError lists every violation of a body against a schema.
type MismatchError struct {
	Path       string
	Violations []Violation
	Body       string
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema validation failed for %s:\n", e.Path)
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "  - %s\n", v)
	}
	fmt.Fprintf(&b, "\nActual response body:\n%s", e.Body)
	return b.String()
}
