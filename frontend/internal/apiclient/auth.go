package apiclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/domain"
)

var ErrNoToken = errors.New("login response carries no access token")

// Login exchanges credentials for a session token. Failures are returned to
// the login form instead of opening the error dialog.
func (c *APIClient) Login(ctx context.Context, req api.LoginRequest) (string, error) {
	if err := c.validateRequest(req); err != nil {
		return "", err
	}
	resp, err := fetcher.Fetch[api.LoginResponse](ctx, c.fetcherFor(ctx), "v1/auth/login",
		fetcher.WithMethod(http.MethodPost),
		fetcher.WithBody(req),
		fetcher.WithJSONMockup("auth/login.json"),
		fetcher.WithErrorDialog(false),
	)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", ErrNoToken
	}
	return resp.AccessToken, nil
}

// Me returns the user the current session belongs to.
func (c *APIClient) Me(ctx context.Context) (domain.User, error) {
	return c.me.Fetch(ctx, struct{}{})
}

// Logout drops everything cached for scope.
func (c *APIClient) Logout(scope string) {
	c.cache.RemoveScope(scope)
}

func (c *APIClient) fetchMe(ctx context.Context, _ struct{}) (domain.User, error) {
	return fetcher.Fetch[domain.User](ctx, c.fetcherFor(ctx), "v1/users/me",
		fetcher.WithJSONMockup("users/me.json"),
	)
}
