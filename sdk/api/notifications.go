package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Notification is one entry of the user's notification inbox.
type Notification struct {
	ID        int64  `json:"notificationId"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	PostID    int64  `json:"postId,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// NotificationPage is one page of the inbox, same cursor shape as the feed.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	NextCursor    string         `json:"nextCursor"`
}

// ListNotifications fetches one inbox page. Requires authentication.
func (c *Client) ListNotifications(ctx context.Context, cursor string, size int) (*NotificationPage, error) {
	page := &NotificationPage{}
	if err := c.do(ctx, http.MethodGet, "/api/notifications", c.cursorQuery(cursor, size), nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

// DeleteNotification removes a single inbox entry.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, nil, nil)
}

// ClearNotifications empties the whole inbox.
func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications", nil, nil, nil)
}

// NotificationsPager returns a pager walking the inbox from the newest entry.
func (c *Client) NotificationsPager(size int) *Pager[Notification] {
	return NewPager(size, func(ctx context.Context, cursor string, pageSize int) ([]Notification, string, error) {
		page, err := c.ListNotifications(ctx, cursor, pageSize)
		if err != nil {
			return nil, "", err
		}
		return page.Notifications, page.NextCursor, nil
	})
}

// RegisterDeviceToken registers a push token for this installation. An empty
// deviceID mints a fresh installation identifier, which the caller should
// persist for the matching DeleteDeviceToken on logout.
func (c *Client) RegisterDeviceToken(ctx context.Context, token, deviceID string) (string, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	payload, err := json.Marshal(map[string]string{"token": token, "deviceId": deviceID})
	if err != nil {
		return "", fmt.Errorf("api: marshal device token failed: %w", err)
	}
	if err = c.do(ctx, http.MethodPost, "/api/device-tokens", nil, payload, nil); err != nil {
		return "", err
	}
	return deviceID, nil
}

// DeleteDeviceToken unregisters the push token of the given installation.
func (c *Client) DeleteDeviceToken(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/api/device-tokens/"+url.PathEscape(deviceID), nil, nil, nil)
}
