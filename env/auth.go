package env

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/conduit-qa/conduit-tests/conduit"
)

const AuthComponentName = "auth"

// AuthEnv logs in once for the whole run. Its details are the
// Authorization header value.
type AuthEnv struct {
	BaseEnv
	client *http.Client

	mu    sync.RWMutex
	token string
}

// NewAuthEnv logs in through client, or http.DefaultClient when nil.
func NewAuthEnv(client *http.Client) *AuthEnv {
	if client == nil {
		client = http.DefaultClient
	}
	return &AuthEnv{BaseEnv: BaseEnv{name: AuthComponentName}, client: client}
}

func (e *AuthEnv) Configure(envs *Envs) ([]string, error) {
	return []string{ConduitComponentName}, nil
}

func (e *AuthEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)

	go func() {
		defer close(resultChan)
		details, ok := envs.GetDetails(ConduitComponentName).(*ConduitDetails)
		if !ok {
			resultChan <- fmt.Errorf("%s has no details", ConduitComponentName)
			return
		}
		token, err := conduit.CreateToken(ctx, e.client, details.APIURL, details.Email, details.Password, envs.Logger())
		if err != nil {
			resultChan <- err
			return
		}
		e.mu.Lock()
		e.token = token
		e.mu.Unlock()
		resultChan <- nil
	}()

	return resultChan
}

// GetDetails returns the token string, or nil before Start succeeded.
func (e *AuthEnv) GetDetails() interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.token == "" {
		return nil
	}
	return e.token
}

// Token is GetDetails with a static type.
func (e *AuthEnv) Token() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token
}
