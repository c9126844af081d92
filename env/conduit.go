package env

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/conduit-qa/conduit-tests/apilog"
	"github.com/conduit-qa/conduit-tests/conduit"
	"github.com/conduit-qa/conduit-tests/conduit/conduittest"
	"github.com/conduit-qa/conduit-tests/config"
	"github.com/conduit-qa/conduit-tests/request"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const ConduitComponentName = "conduit"

// Account used in stub and container mode when the config names none.
const (
	StubEmail    = "conduit-tests@example.com"
	StubUsername = "conduittests"
	StubPassword = "conduit-tests"
)

// ConduitDetails is what ConduitEnv exposes once started.
type ConduitDetails struct {
	APIURL   string
	WebURL   string
	Email    string
	Password string
	Mode     config.Mode
}

// ConduitEnv provides the backend under test: a remote deployment, the
// in-process stub or a container.
type ConduitEnv struct {
	BaseEnv
	cfg *config.Config

	mu        sync.RWMutex
	details   *ConduitDetails
	stub      *conduittest.Server
	container testcontainers.Container
}

func NewConduitEnv(cfg *config.Config) *ConduitEnv {
	return &ConduitEnv{
		BaseEnv: BaseEnv{name: ConduitComponentName},
		cfg:     cfg,
	}
}

func (e *ConduitEnv) Configure(envs *Envs) ([]string, error) {
	if e.cfg == nil {
		return nil, fmt.Errorf("no configuration")
	}
	return []string{}, e.cfg.Validate()
}

func (e *ConduitEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)
	logger := envs.Logger().With(zap.String("component", e.Name()), zap.String("mode", string(e.cfg.Conduit.Mode)))

	go func() {
		defer close(resultChan)

		details := &ConduitDetails{
			APIURL:   e.cfg.APIURL,
			WebURL:   e.cfg.WebURL,
			Email:    e.cfg.UserEmail,
			Password: e.cfg.UserPassword,
			Mode:     e.cfg.Conduit.Mode,
		}
		if details.Email == "" {
			details.Email, details.Password = StubEmail, StubPassword
		}

		var err error
		switch e.cfg.Conduit.Mode {
		case config.ModeRemote:
			err = waitForHTTP(ctx, details.APIURL+"/tags", time.Minute, logger)
		case config.ModeStub:
			err = e.startStub(details, logger)
		case config.ModeContainer:
			err = e.startContainer(ctx, details, logger)
		default:
			err = fmt.Errorf("unknown conduit mode %q", e.cfg.Conduit.Mode)
		}
		if err != nil {
			resultChan <- err
			return
		}

		e.mu.Lock()
		e.details = details
		e.mu.Unlock()
		logger.Info("Conduit ready", zap.String("api_url", details.APIURL))
		resultChan <- nil
	}()

	return resultChan
}

func (e *ConduitEnv) startStub(details *ConduitDetails, logger *zap.Logger) error {
	username := StubUsername
	if at := strings.IndexByte(details.Email, '@'); at >= 3 && at <= 20 {
		username = details.Email[:at]
	}
	srv := conduittest.New(
		conduittest.WithLogger(logger),
		conduittest.WithUser(details.Email, username, details.Password),
	)
	details.APIURL = srv.Start()

	e.mu.Lock()
	e.stub = srv
	e.mu.Unlock()
	return nil
}

func (e *ConduitEnv) startContainer(ctx context.Context, details *ConduitDetails, logger *zap.Logger) error {
	port := nat.Port(fmt.Sprintf("%d/tcp", e.cfg.Conduit.Port))
	req := testcontainers.ContainerRequest{
		Image:        e.cfg.Conduit.Image,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"PORT":       fmt.Sprint(e.cfg.Conduit.Port),
			"JWT_SECRET": "conduit-tests",
		},
		WaitingFor: wait.ForHTTP(conduittest.APIPrefix + "/tags").
			WithPort(port).
			WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if container != nil {
			container.Terminate(context.Background())
		}
		return fmt.Errorf("failed to start container: %w", err)
	}
	if details.APIURL, err = e.adopt(ctx, container, port); err != nil {
		return err
	}
	logger.Info("Conduit container started", zap.String("api_url", details.APIURL))

	// A fresh container has no accounts.
	api := request.New(http.DefaultClient, apilog.NewRecorder(logger), request.WithBaseURL(details.APIURL), request.WithLogger(logger))
	_, err = api.Path("/users").
		Body(conduit.CredentialsEnvelope{User: conduit.Credentials{Email: details.Email, Password: details.Password, Username: StubUsername}}).
		ClearAuth().
		Post(ctx, http.StatusCreated)
	if err != nil {
		logger.Warn("Registering the suite account failed", zap.Error(err))
	}
	return nil
}

// adopt resolves the API URL of a started container and keeps it for Stop.
// The container is terminated when the URL cannot be resolved, since a
// component that failed to start is not stopped by Envs.
func (e *ConduitEnv) adopt(ctx context.Context, container testcontainers.Container, port nat.Port) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(context.Background())
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		container.Terminate(context.Background())
		return "", fmt.Errorf("failed to get mapped port: %w", err)
	}

	e.mu.Lock()
	e.container = container
	e.mu.Unlock()
	return fmt.Sprintf("http://%s:%s%s", host, mapped.Port(), conduittest.APIPrefix), nil
}

// Stop shuts down the stub or terminates the container.
func (e *ConduitEnv) Stop() error {
	e.mu.Lock()
	stub, container := e.stub, e.container
	e.stub, e.container = nil, nil
	e.mu.Unlock()

	if stub != nil {
		stub.Close()
	}
	if container != nil {
		if err := container.Terminate(context.Background()); err != nil {
			return fmt.Errorf("failed to stop %s container: %w", e.Name(), err)
		}
	}
	return nil
}

// URL returns the API base URL, including the /api prefix.
func (e *ConduitEnv) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.details == nil {
		return ""
	}
	return e.details.APIURL
}

// GetDetails returns a *ConduitDetails, or nil before Start succeeded.
func (e *ConduitEnv) GetDetails() interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.details == nil {
		return nil
	}
	return e.details
}
