package request

import "fmt"

// StatusMismatchError is returned when a dispatch gets a status other than
// the expected one. Logs holds the recorder's recent window.
type StatusMismatchError struct {
	Method   string
	URL      string
	Expected int
	Actual   int
	Logs     string
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("Expected status %d but got %d\n\nRecent API Activity:\n%s", e.Expected, e.Actual, e.Logs)
}

// TransportError wraps a failure of the HTTP capability itself.
type TransportError struct {
	Method string
	URL    string
	Err    error
	Logs   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed: %v\n\nRecent API Activity:\n%s", e.Method, e.URL, e.Err, e.Logs)
}

func (e *TransportError) Unwrap() error { return e.Err }
