// Package request provides the fluent request builder used by the suite.
//
// A Handler accumulates the parts of one request through chained setters and
// sends it with Get, Post, Put or Delete. Every dispatch consumes the
// accumulated state, so the next chain on the same Handler starts blank:
//
//	resp, err := api.Path("/articles").Params(request.P("limit", 10)).Get(ctx, http.StatusOK)
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/conduit-qa/conduit-tests/apilog"
	"go.uber.org/zap"
)

// QueryParam is one query string pair; order of Params is preserved on the wire.
type QueryParam struct {
	Key   string
	Value any
}

// P is shorthand for a QueryParam.
func P(key string, value any) QueryParam {
	return QueryParam{Key: key, Value: value}
}

type spec struct {
	baseURL   string
	path      string
	params    []QueryParam
	headers   map[string]string
	body      any
	hasBody   bool
	clearAuth bool
}

// Handler is a single-request accumulator. It is not safe for concurrent
// dispatches; give each test its own Handler.
type Handler struct {
	client      Doer
	baseURL     string
	defaultAuth string
	recorder    *apilog.Recorder
	logger      *zap.Logger

	spec spec
}

// Option configures a Handler.
type Option func(*Handler)

// WithBaseURL sets the base URL used when BaseURL is not called.
func WithBaseURL(u string) Option {
	return func(h *Handler) { h.baseURL = u }
}

// WithDefaultAuth sets the Authorization value sent when a request sets none.
func WithDefaultAuth(token string) Option {
	return func(h *Handler) { h.defaultAuth = token }
}

// WithLogger sets the logger for transport level diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New returns a Handler sending through client and logging into recorder.
func New(client Doer, recorder *apilog.Recorder, opts ...Option) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	if recorder == nil {
		recorder = apilog.NewRecorder(nil)
	}
	h := &Handler{
		client:   client,
		recorder: recorder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Recorder returns the log the handler writes into.
func (h *Handler) Recorder() *apilog.Recorder { return h.recorder }

// BaseURL overrides the configured base URL for the next request.
func (h *Handler) BaseURL(u string) *Handler {
	h.spec.baseURL = u
	return h
}

// Path sets the path appended to the base URL.
func (h *Handler) Path(p string) *Handler {
	h.spec.path = p
	return h
}

// Params replaces the query parameters.
func (h *Handler) Params(params ...QueryParam) *Handler {
	h.spec.params = append([]QueryParam(nil), params...)
	return h
}

// Headers replaces the explicit headers.
func (h *Handler) Headers(headers map[string]string) *Handler {
	h.spec.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		h.spec.headers[k] = v
	}
	return h
}

// Body sets the value JSON encoded for POST and PUT.
func (h *Handler) Body(v any) *Handler {
	h.spec.body = v
	h.spec.hasBody = true
	return h
}

// ClearAuth suppresses the default Authorization header for the next request.
func (h *Handler) ClearAuth() *Handler {
	h.spec.clearAuth = true
	return h
}

// Get sends a GET request and returns the response if its status is expected.
func (h *Handler) Get(ctx context.Context, expected int) (*Response, error) {
	return h.dispatch(ctx, http.MethodGet, expected)
}

// Post sends a POST request with the JSON body.
func (h *Handler) Post(ctx context.Context, expected int) (*Response, error) {
	return h.dispatch(ctx, http.MethodPost, expected)
}

// Put sends a PUT request with the JSON body.
func (h *Handler) Put(ctx context.Context, expected int) (*Response, error) {
	return h.dispatch(ctx, http.MethodPut, expected)
}

// Delete sends a DELETE request.
func (h *Handler) Delete(ctx context.Context, expected int) error {
	_, err := h.dispatch(ctx, http.MethodDelete, expected)
	return err
}

// take returns the accumulated spec and leaves a blank one behind, so every
// exit path of a dispatch, including failures, starts the next chain clean.
func (h *Handler) take() spec {
	s := h.spec
	h.spec = spec{}
	return s
}

func (h *Handler) dispatch(ctx context.Context, method string, expected int) (*Response, error) {
	s := h.take()

	target := h.resolveURL(s)
	headers := h.resolveHeaders(s, method)

	var payload io.Reader
	var loggedBody any
	if sendsBody(method) && s.hasBody {
		encoded, err := json.Marshal(s.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s body: %w", method, err)
		}
		payload = bytes.NewReader(encoded)
		loggedBody = s.body
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, target, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	h.recorder.LogRequest(method, target, headers, loggedBody)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error("Request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, &TransportError{Method: method, URL: target, Err: err, Logs: h.recorder.RecentLogs()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Warn("Failed to read response body", zap.String("url", target), zap.Error(err))
		raw = nil
	}
	body := parseBody(raw)

	h.recorder.LogResponse(resp.StatusCode, body)

	if resp.StatusCode != expected {
		return nil, &StatusMismatchError{
			Method:   method,
			URL:      target,
			Expected: expected,
			Actual:   resp.StatusCode,
			Logs:     h.recorder.RecentLogs(),
		}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
		Raw:    raw,
	}, nil
}

func (h *Handler) resolveURL(s spec) string {
	base := h.baseURL
	if s.baseURL != "" {
		base = s.baseURL
	}
	target := base + s.path
	if len(s.params) == 0 {
		return target
	}
	pairs := make([]string, 0, len(s.params))
	for _, p := range s.params {
		pairs = append(pairs, url.QueryEscape(p.Key)+"="+url.QueryEscape(fmt.Sprint(p.Value)))
	}
	return target + "?" + strings.Join(pairs, "&")
}

func (h *Handler) resolveHeaders(s spec, method string) map[string]string {
	headers := make(map[string]string, len(s.headers)+2)
	for k, v := range s.headers {
		headers[k] = v
	}
	if !s.clearAuth && h.defaultAuth != "" && !hasHeader(headers, "Authorization") {
		headers["Authorization"] = h.defaultAuth
	}
	if sendsBody(method) && !hasHeader(headers, "Content-Type") {
		headers["Content-Type"] = "application/json"
	}
	return headers
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func sendsBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}
