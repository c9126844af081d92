// Package fixtures assembles the per-test objects: a recorder, a request
// handler wired to it, assertions and a schema store.
package fixtures

import (
	"net/http"
	"testing"
	"time"

	"github.com/conduit-qa/conduit-tests/apilog"
	"github.com/conduit-qa/conduit-tests/request"
	"github.com/conduit-qa/conduit-tests/schema"
	"github.com/conduit-qa/conduit-tests/verify"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Options describe the backend the handler talks to.
type Options struct {
	BaseURL string
	// Token is the full Authorization value, e.g. "Token eyJ...".
	Token     string
	SchemaDir string
	// Client defaults to a throttled client built from RequestsPerSecond
	// and Timeout.
	Client            *http.Client
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Fixture is owned by one test and never shared.
type Fixture struct {
	API     *request.Handler
	Expect  *verify.Expect
	Logs    *apilog.Recorder
	Logger  *zap.Logger
	Schemas *schema.Store
}

// New builds a fresh Fixture for t.
func New(t testing.TB, opts Options) *Fixture {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: request.NewThrottledTransport(nil, opts.RequestsPerSecond, 1),
			Timeout:   opts.Timeout,
		}
	}

	logs := apilog.NewRecorder(logger)
	schemas := schema.NewStore(opts.SchemaDir, logger)
	return &Fixture{
		API: request.New(client, logs,
			request.WithBaseURL(opts.BaseURL),
			request.WithDefaultAuth(opts.Token),
			request.WithLogger(logger),
		),
		Expect:  verify.New(t, logs, schemas),
		Logs:    logs,
		Logger:  logger,
		Schemas: schemas,
	}
}
