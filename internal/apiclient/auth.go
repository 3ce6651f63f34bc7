package apiclient

import (
	"context"

	"github.com/AnnaKryuchkova/product-console/internal/model"
)

// Login exchanges credentials for a token pair and the account profile.
func (c *Client) Login(ctx context.Context, in model.LoginRequest) (model.LoginResponse, error) {
	return Post[model.LoginResponse](ctx, c, "/auth/login", in)
}

// CurrentUser returns the profile the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (model.User, error) {
	return Get[model.User](ctx, c, "/auth/me", WithBearer(accessToken))
}
