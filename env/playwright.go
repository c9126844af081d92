package env

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const PlaywrightComponentName = "playwright"

// PlaywrightEnv runs the Playwright driver. Details are *playwright.Playwright.
type PlaywrightEnv struct {
	BaseEnv
	pwInstance *playwright.Playwright
	pwMux      sync.RWMutex
}

func NewPlaywrightEnv() *PlaywrightEnv {
	return &PlaywrightEnv{
		BaseEnv: BaseEnv{name: PlaywrightComponentName},
	}
}

func (e *PlaywrightEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)
	logger := envs.Logger().With(zap.String("component", e.Name()))

	go func() {
		defer close(resultChan)

		// may download browsers on first use
		pw, err := playwright.Run()
		if err != nil {
			if ctx.Err() != nil {
				resultChan <- fmt.Errorf("context cancelled during playwright start: %w", ctx.Err())
				return
			}
			resultChan <- fmt.Errorf("failed to run playwright: %w", err)
			return
		}

		e.pwMux.Lock()
		e.pwInstance = pw
		e.pwMux.Unlock()
		logger.Debug("Playwright driver running")
		resultChan <- nil
	}()

	return resultChan
}

func (e *PlaywrightEnv) Stop() error {
	e.pwMux.Lock()
	pw := e.pwInstance
	e.pwInstance = nil
	e.pwMux.Unlock()

	if pw == nil {
		return nil
	}
	if err := pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s: %w", e.Name(), err)
	}
	return nil
}

func (e *PlaywrightEnv) GetDetails() interface{} {
	e.pwMux.RLock()
	defer e.pwMux.RUnlock()
	if e.pwInstance == nil {
		return nil
	}
	return e.pwInstance
}
