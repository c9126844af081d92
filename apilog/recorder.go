// Package apilog records the HTTP traffic of a single test so that failing
// assertions can show what was sent and received.
package apilog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity is the number of entries a Recorder keeps before dropping the oldest.
const DefaultCapacity = 32

// Entry is either a *RequestEntry or a *ResponseEntry.
type Entry interface {
	Kind() string
	Time() time.Time
}

// RequestEntry describes an outgoing request.
type RequestEntry struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Body      any               `json:"body,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (e *RequestEntry) Kind() string    { return "Request Details" }
func (e *RequestEntry) Time() time.Time { return e.Timestamp }

// ResponseEntry describes a received response.
type ResponseEntry struct {
	Status    int       `json:"status"`
	Body      any       `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ResponseEntry) Kind() string    { return "Response Details" }
func (e *ResponseEntry) Time() time.Time { return e.Timestamp }

// Recorder is a bounded, append-only log of request/response entries.
// A Recorder belongs to one test; the mutex only protects against the
// occasional goroutine inside a test logging concurrently.
type Recorder struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCapacity bounds the number of retained entries.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates an empty recorder. A nil logger disables the debug stream.
func NewRecorder(logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		capacity: DefaultCapacity,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LogRequest appends a request entry.
func (r *Recorder) LogRequest(method, url string, headers map[string]string, body any) {
	entry := &RequestEntry{
		Method:    method,
		URL:       url,
		Headers:   copyHeaders(headers),
		Body:      body,
		Timestamp: r.now().UTC(),
	}
	r.append(entry)
	r.logger.Debug("Request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Any("headers", entry.Headers),
		zap.Any("body", body))
}

// LogResponse appends a response entry.
func (r *Recorder) LogResponse(status int, body any) {
	r.append(&ResponseEntry{
		Status:    status,
		Body:      body,
		Timestamp: r.now().UTC(),
	})
	r.logger.Debug("Response", zap.Int("status", status), zap.Any("body", body))
}

func (r *Recorder) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, e)
}

// Entries returns a copy of everything currently retained, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Recent returns the latest exchange: the last request and whatever was
// logged after it. Without any request it returns the last entry alone.
func (r *Recorder) Recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	start := len(r.entries) - 1
	for i := len(r.entries) - 1; i >= 0; i-- {
		if _, ok := r.entries[i].(*RequestEntry); ok {
			start = i
			break
		}
	}
	out := make([]Entry, len(r.entries)-start)
	copy(out, r.entries[start:])
	return out
}

// RecentLogs renders Recent as text. It returns "" when nothing was logged.
func (r *Recorder) RecentLogs() string {
	recent := r.Recent()
	blocks := make([]string, 0, len(recent))
	for _, e := range recent {
		blocks = append(blocks, render(e))
	}
	return strings.Join(blocks, "\n\n")
}

func render(e Entry) string {
	var data any
	switch v := e.(type) {
	case *RequestEntry:
		data = struct {
			Type string `json:"type"`
			*RequestEntry
		}{"request", v}
	case *ResponseEntry:
		data = struct {
			Type string `json:"type"`
			*ResponseEntry
		}{"response", v}
	}
	b, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		// unencodable body; still show something useful
		b = []byte(fmt.Sprintf("%+v", e))
	}
	return fmt.Sprintf("===%s===\n%s", e.Kind(), b)
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
