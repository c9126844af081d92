package verify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AssertionError describes a failed check together with the API traffic
// that led up to it.
type AssertionError struct {
	Matcher  string
	Expected any
	Received any
	Diff     string
	Logs     string
	// Err is set when the check delegated to something that failed on its
	// own terms, such as schema validation.
	Err error
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Matcher)
	b.WriteString("\n\n")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		fmt.Fprintf(&b, "Expected: %s\nReceived: %s", printValue(e.Expected), printValue(e.Received))
		if e.Diff != "" {
			b.WriteString("\n\nDiff (-expected +received):\n")
			b.WriteString(e.Diff)
		}
	}
	b.WriteString("\n\nRecent API Logs:\n")
	b.WriteString(e.Logs)
	return b.String()
}

func (e *AssertionError) Unwrap() error { return e.Err }

func printValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(out)
}
