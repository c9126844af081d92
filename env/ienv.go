package env

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

// Environment is one component of the suite's environment (the Conduit
// backend, a logged-in session, the browser driver).
type Environment interface {
	// Name is unique among registered components and used for lookups and
	// dependencies.
	Name() string

	// Configure runs for every component before any Start and returns the
	// names of the components that must start first.
	Configure(envs *Envs) (dependencies []string, err error)

	// Start runs once all dependencies have started. The channel receives
	// exactly one value (nil on success) and is then closed.
	Start(ctx context.Context, envs *Envs) <-chan error

	Stop() error

	// URL is the component's address, or "" when it has none.
	URL() string

	// GetDetails exposes whatever tests need from the component once
	// started, e.g. *playwright.Playwright or the auth token.
	GetDetails() interface{}

	GetStartDuration() time.Duration
	SetStartDuration(d time.Duration)
}

// BaseEnv gives embedding components a name, the start duration and no-op
// defaults for everything else.
type BaseEnv struct {
	startDuration time.Duration
	name          string
}

func (b *BaseEnv) Name() string {
	return b.name
}

func (b *BaseEnv) Configure(envs *Envs) (dependencies []string, err error) {
	return []string{}, nil
}

func (b *BaseEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)
	resultChan <- nil
	close(resultChan)
	return resultChan
}

func (b *BaseEnv) Stop() error {
	return nil
}

func (b *BaseEnv) URL() string {
	return ""
}

func (b *BaseEnv) GetDetails() interface{} {
	return nil
}

func (b *BaseEnv) GetStartDuration() time.Duration {
	return b.startDuration
}

func (b *BaseEnv) SetStartDuration(d time.Duration) {
	b.startDuration = d
}

// waitForHTTP polls url with exponential backoff until it answers 200 or
// timeout elapses.
func waitForHTTP(ctx context.Context, url string, timeout time.Duration, logger *zap.Logger) error {
	logger.Info("Waiting for service", zap.String("url", url), zap.Duration("timeout", timeout))
	started := time.Now()

	httpClient := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second
	expBackoff.MaxElapsedTime = timeout

	probe := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("Service not ready", zap.String("url", url), zap.Error(err), zap.Duration("retry_in", next))
	}

	if err := backoff.RetryNotify(probe, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return fmt.Errorf("service at %s not ready after %s: %w", url, time.Since(started), err)
	}
	logger.Info("Service ready", zap.String("url", url), zap.Duration("after", time.Since(started)))
	return nil
}
