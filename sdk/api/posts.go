package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/sjson"
)

// Post is a community feed entry.
type Post struct {
	ID             int64    `json:"postId"`
	AuthorID       int64    `json:"authorId"`
	AuthorNickname string   `json:"authorNickname,omitempty"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
	LikeCount      int      `json:"likeCount"`
	CommentCount   int      `json:"commentCount"`
	CreatedAt      string   `json:"createdAt,omitempty"`
}

// PostPage is one page of the cursor-paginated feed. An empty NextCursor
// means the feed is exhausted.
type PostPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"nextCursor"`
}

// CreatePostRequest carries the fields of a new post.
type CreatePostRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	ImageURLs []string `json:"imageUrls,omitempty"`
}

// UpdatePostRequest carries a partial post update; nil fields are left untouched.
type UpdatePostRequest struct {
	Title     *string
	Content   *string
	ImageURLs *[]string
}

// ListPosts fetches one feed page. cursor is the opaque value returned by the
// previous page, empty for the first page; size <= 0 selects the configured
// default. Listing is public and needs no authentication.
func (c *Client) ListPosts(ctx context.Context, cursor string, size int) (*PostPage, error) {
	page := &PostPage{}
	if err := c.do(ctx, http.MethodGet, "/api/community/posts", c.cursorQuery(cursor, size), nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetPost fetches a single post by id.
func (c *Client) GetPost(ctx context.Context, id int64) (*Post, error) {
	post := &Post{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/community/posts/%d", id), nil, nil, post); err != nil {
		return nil, err
	}
	return post, nil
}

// CreatePost publishes a new post. Requires authentication.
func (c *Client) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	payload, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("api: marshal post failed: %w", err)
	}
	post := &Post{}
	if err = c.do(ctx, http.MethodPost, "/api/community/posts", nil, payload, post); err != nil {
		return nil, err
	}
	return post, nil
}

// UpdatePost edits an existing post, sending only the fields set in req.
// Requires authentication and post ownership.
func (c *Client) UpdatePost(ctx context.Context, id int64, req UpdatePostRequest) (*Post, error) {
	payload := []byte(`{}`)
	var err error
	if req.Title != nil {
		if payload, err = sjson.SetBytes(payload, "title", *req.Title); err != nil {
			return nil, fmt.Errorf("api: build update payload failed: %w", err)
		}
	}
	if req.Content != nil {
		if payload, err = sjson.SetBytes(payload, "content", *req.Content); err != nil {
			return nil, fmt.Errorf("api: build update payload failed: %w", err)
		}
	}
	if req.ImageURLs != nil {
		if payload, err = sjson.SetBytes(payload, "imageUrls", *req.ImageURLs); err != nil {
			return nil, fmt.Errorf("api: build update payload failed: %w", err)
		}
	}

	post := &Post{}
	if err = c.do(ctx, http.MethodPut, fmt.Sprintf("/api/community/posts/%d", id), nil, payload, post); err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes a post. Requires authentication and post ownership.
func (c *Client) DeletePost(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/community/posts/%d", id), nil, nil, nil)
}

// PostsPager returns a pager walking the feed from the beginning.
func (c *Client) PostsPager(size int) *Pager[Post] {
	return NewPager(size, func(ctx context.Context, cursor string, pageSize int) ([]Post, string, error) {
		page, err := c.ListPosts(ctx, cursor, pageSize)
		if err != nil {
			return nil, "", err
		}
		return page.Posts, page.NextCursor, nil
	})
}
