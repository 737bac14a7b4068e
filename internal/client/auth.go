package client

import (
	"context"
	"errors"
	"net/http"

	"expohub/internal/auth"
	"expohub/internal/models"
)

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// SignUp registers and then signs in, so a successful sign-up leaves a session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	body := map[string]string{"email": email, "password": password}
	if err := c.anonymous(ctx, http.MethodPost, "/api/auth/register", body, nil); err != nil {
		return nil, err
	}
	return c.SignIn(ctx, email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.anonymous(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.setToken(resp.Token)
	u := resp.User
	c.emit(auth.Change{Event: auth.SignedIn, User: &u})
	return &u, nil
}

// SignOut ends the session on the server. An already-expired session still counts as
// signed out.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	if err != nil && !IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if c.Token() != "" {
		c.setToken("")
		c.emit(auth.Change{Event: auth.SignedOut})
	}
	return nil
}

// CurrentUser returns nil without error when there is no valid session.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var u models.User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &u)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Changes() <-chan auth.Change { return c.changes }

// emit never blocks; with nobody draining the stream, changes are dropped.
func (c *Client) emit(ch auth.Change) {
	select {
	case c.changes <- ch:
	default:
	}
}
