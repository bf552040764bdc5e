package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/profiledir/internal/models"
)

// FetchUsers lists the directory. Any failure is logged and yields an empty list.
func (c *Client) FetchUsers(ctx context.Context, filter models.UserFilter) []models.User {
	const op = "users"

	query := url.Values{}
	if filter.Role != "" {
		query.Set("role", filter.Role)
	}
	if filter.City != "" {
		query.Set("city", filter.City)
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}

	endpoint := c.baseURL.JoinPath("users/")
	endpoint.RawQuery = query.Encode()

	resp, err := c.do(ctx, c.directory, op, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch users")
		return []models.User{}
	}
	if !resp.ok() {
		log.Warn().Err(unexpected(op, resp)).Msg("failed to fetch users")
		return []models.User{}
	}

	users, err := decodeUserList(resp.body)
	if err != nil {
		log.Warn().Err(err).Msg("failed to decode users")
		return []models.User{}
	}

	filtered := make([]models.User, 0, len(users))
	for _, user := range users {
		if filter.Match(user) {
			filtered = append(filtered, user)
		}
	}

	return filtered
}

// FetchUserByUsername looks up one profile. accessToken is optional. Any
// failure is reported as ErrNotFound.
func (c *Client) FetchUserByUsername(ctx context.Context, username, accessToken string) (*models.User, error) {
	const op = "user"

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrNotFound
	}

	hc := c.directory
	if accessToken != "" {
		hc = c.authenticated(accessToken)
	}

	resp, err := c.do(ctx, hc, op, http.MethodGet, c.endpoint("users", url.PathEscape(username)+"/"), nil)
	if err != nil {
		log.Warn().Err(err).Str("username", username).Msg("failed to fetch user")
		return nil, ErrNotFound
	}
	if !resp.ok() {
		if resp.status != http.StatusNotFound {
			log.Warn().Err(unexpected(op, resp)).Str("username", username).Msg("failed to fetch user")
		}
		return nil, ErrNotFound
	}

	user, err := decodeUser(op, resp)
	if err != nil {
		log.Warn().Err(err).Str("username", username).Msg("failed to decode user")
		return nil, ErrNotFound
	}

	return user, nil
}

// decodeUserList accepts a bare array or a paginated {"results": [...]} page.
func decodeUserList(body []byte) ([]models.User, error) {
	var users []models.User
	if err := json.Unmarshal(body, &users); err == nil {
		return users, nil
	}

	var page struct {
		Results []models.User `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		return []models.User{}, nil
	}
	return page.Results, nil
}
