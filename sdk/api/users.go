package api

import (
	"context"
	"net/http"
)

// User is the profile of a RUNNERS account.
type User struct {
	// UserID is the account identifier.
	UserID int64 `json:"userId"`
	// Nickname is the display name shown on posts and comments.
	Nickname string `json:"nickname"`
	// ProfileImageURL points at the avatar image, if any.
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	// Email is the account email as reported by the identity provider.
	Email string `json:"email,omitempty"`
}

// Me fetches the profile of the currently authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	user := &User{}
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}
