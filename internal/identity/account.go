package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wolfeidau/profiledir/internal/models"
)

// Register creates an account. Password confirmation and required fields are
// the caller's job; see models.NewUser.CheckPasswords.
func (c *Client) Register(ctx context.Context, newUser models.NewUser) (*models.User, error) {
	const op = "register"

	resp, err := c.do(ctx, c.plain, op, http.MethodPost, c.endpoint("register/"), newUser)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.ok():
		return decodeUser(op, resp)
	case resp.status >= 400 && resp.status < 500:
		reason, fields := parseErrorBody(resp.body, "Failed to register user")
		return nil, &Error{Kind: ErrValidationFailed, Status: resp.status, Reason: reason, Fields: fields}
	default:
		return nil, unexpected(op, resp)
	}
}

// Login exchanges credentials for a token pair and the user. It does not
// persist anything.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.CredentialBundle, error) {
	const op = "login"

	resp, err := c.do(ctx, c.plain, op, http.MethodPost, c.endpoint("login/"), creds)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.ok():
		var bundle models.CredentialBundle
		if err := decode(op, resp, &bundle); err != nil {
			return nil, err
		}
		if bundle.AccessToken == "" || bundle.User == nil || bundle.User.Username == "" {
			return nil, fmt.Errorf("%w: %s: response is missing access token or user", ErrUnreachable, op)
		}
		return &bundle, nil
	case resp.status >= 400 && resp.status < 500:
		reason, fields := parseErrorBody(resp.body, "Failed to login")
		return nil, &Error{Kind: ErrRejected, Status: resp.status, Reason: reason, Fields: fields}
	default:
		return nil, unexpected(op, resp)
	}
}

// FetchCurrentUser returns the user the access token belongs to.
// ErrUnauthorized means the token was refused; every other failure is ErrUnreachable.
func (c *Client) FetchCurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "me"

	resp, err := c.do(ctx, c.authenticated(accessToken), op, http.MethodGet, c.endpoint("me/"), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.ok():
		return decodeUser(op, resp)
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnauthorized, op, resp.status)
	default:
		return nil, unexpected(op, resp)
	}
}

// UpdateCurrentUser applies a partial profile edit and returns the updated user.
func (c *Client) UpdateCurrentUser(ctx context.Context, accessToken string, update models.ProfileUpdate) (*models.User, error) {
	const op = "update_me"

	resp, err := c.do(ctx, c.authenticated(accessToken), op, http.MethodPatch, c.endpoint("me/"), update)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.ok():
		return decodeUser(op, resp)
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnauthorized, op, resp.status)
	case resp.status >= 400 && resp.status < 500:
		reason, fields := parseErrorBody(resp.body, "Failed to update profile")
		return nil, &Error{Kind: ErrValidationFailed, Status: resp.status, Reason: reason, Fields: fields}
	default:
		return nil, unexpected(op, resp)
	}
}

// decodeUser rejects a body that decodes but names nobody, such as null or {}.
func decodeUser(op string, resp *response) (*models.User, error) {
	var user *models.User
	if err := decode(op, resp, &user); err != nil {
		return nil, err
	}
	if user == nil || user.Username == "" {
		return nil, fmt.Errorf("%w: %s: response has no user", ErrUnreachable, op)
	}
	return user, nil
}
