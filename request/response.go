package request

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is the result of a successful dispatch.
type Response struct {
	Status int
	Header http.Header
	// Body is the decoded JSON body, or nil when the body was empty or not JSON.
	Body any
	Raw  []byte
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	if len(r.Raw) == 0 {
		return fmt.Errorf("response body is empty")
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

func parseBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
