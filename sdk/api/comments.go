package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Comment is a single comment under a post.
type Comment struct {
	ID             int64  `json:"commentId"`
	PostID         int64  `json:"postId"`
	AuthorID       int64  `json:"authorId"`
	AuthorNickname string `json:"authorNickname,omitempty"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// CommentPage is one page of a post's comments, same cursor shape as the feed.
type CommentPage struct {
	Comments   []Comment `json:"comments"`
	NextCursor string    `json:"nextCursor"`
}

// ListComments fetches one page of comments for a post. Reading is public.
func (c *Client) ListComments(ctx context.Context, postID int64, cursor string, size int) (*CommentPage, error) {
	page := &CommentPage{}
	path := fmt.Sprintf("/api/community/posts/%d/comments", postID)
	if err := c.do(ctx, http.MethodGet, path, c.cursorQuery(cursor, size), nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

// CreateComment adds a comment to a post. Requires authentication.
func (c *Client) CreateComment(ctx context.Context, postID int64, content string) (*Comment, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("api: marshal comment failed: %w", err)
	}
	comment := &Comment{}
	path := fmt.Sprintf("/api/community/posts/%d/comments", postID)
	if err = c.do(ctx, http.MethodPost, path, nil, payload, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// UpdateComment edits a comment. Requires authentication and comment ownership.
func (c *Client) UpdateComment(ctx context.Context, postID, commentID int64, content string) (*Comment, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("api: marshal comment failed: %w", err)
	}
	comment := &Comment{}
	path := fmt.Sprintf("/api/community/posts/%d/comments/%d", postID, commentID)
	if err = c.do(ctx, http.MethodPut, path, nil, payload, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment removes a comment. Requires authentication and comment ownership.
func (c *Client) DeleteComment(ctx context.Context, postID, commentID int64) error {
	path := fmt.Sprintf("/api/community/posts/%d/comments/%d", postID, commentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// CommentsPager returns a pager walking a post's comments from the beginning.
func (c *Client) CommentsPager(postID int64, size int) *Pager[Comment] {
	return NewPager(size, func(ctx context.Context, cursor string, pageSize int) ([]Comment, string, error) {
		page, err := c.ListComments(ctx, postID, cursor, pageSize)
		if err != nil {
			return nil, "", err
		}
		return page.Comments, page.NextCursor, nil
	})
}
