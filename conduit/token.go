package conduit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/conduit-qa/conduit-tests/apilog"
	"github.com/conduit-qa/conduit-tests/request"
	"go.uber.org/zap"
)

// TokenScheme prefixes tokens in the Authorization header.
const TokenScheme = "Token "

// CreateToken logs in through /users/login and returns the Authorization
// header value for the session.
func CreateToken(ctx context.Context, client request.Doer, apiURL, email, password string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := request.New(client, apilog.NewRecorder(logger), request.WithBaseURL(apiURL), request.WithLogger(logger))

	resp, err := api.Path("/users/login").
		Body(CredentialsEnvelope{User: Credentials{Email: email, Password: password}}).
		ClearAuth().
		Post(ctx, http.StatusOK)
	if err != nil {
		return "", fmt.Errorf("login as %s: %w", email, err)
	}

	var env UserEnvelope
	if err := resp.Decode(&env); err != nil {
		return "", fmt.Errorf("login as %s: %w", email, err)
	}
	if env.User.Token == "" {
		return "", fmt.Errorf("login as %s: response carries no token", email)
	}
	logger.Debug("Obtained token", zap.String("email", email))
	return TokenScheme + env.User.Token, nil
}
