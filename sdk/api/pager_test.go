package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
)

func TestPagerWalksAllPages(t *testing.T) {
	t.Parallel()

	// Three pages of posts keyed by cursor; the last page reports no next cursor.
	pages := map[string]string{
		"":   `{"posts":[{"postId":1,"title":"a","content":""},{"postId":2,"title":"b","content":""}],"nextCursor":"c2"}`,
		"c2": `{"posts":[{"postId":3,"title":"c","content":""}],"nextCursor":"c3"}`,
		"c3": `{"posts":[{"postId":4,"title":"d","content":""}],"nextCursor":""}`,
	}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	pager := client.PostsPager(2)
	var ids []int64
	for {
		posts, err := pager.Next(context.Background())
		if errors.Is(err, ErrNoMorePages) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		for _, p := range posts {
			ids = append(ids, p.ID)
		}
	}

	want := []int64{1, 2, 3, 4}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("collected ids = %v, want %v", ids, want)
	}
	if !pager.Exhausted() {
		t.Error("Exhausted() = false after walking all pages")
	}
}

func TestPagerRetriesFailedPageWithoutAdvancing(t *testing.T) {
	t.Parallel()

	var hits int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts":[{"postId":` + strconv.Itoa(hits) + `,"title":"t","content":""}],"nextCursor":""}`))
	}))

	pager := client.PostsPager(10)
	if _, err := pager.Next(context.Background()); err == nil {
		t.Fatal("Next() expected error on first page, got nil")
	}
	if pager.Exhausted() {
		t.Fatal("Exhausted() = true after a failed load")
	}

	posts, err := pager.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() retry error = %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("Next() retry returned %d posts, want 1", len(posts))
	}
}

func TestPagerReset(t *testing.T) {
	t.Parallel()

	var cursors []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursors = append(cursors, r.URL.Query().Get("cursor"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts":[],"nextCursor":""}`))
	}))

	pager := client.PostsPager(10)
	if _, err := pager.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := pager.Next(context.Background()); !errors.Is(err, ErrNoMorePages) {
		t.Fatalf("Next() after exhaustion = %v, want ErrNoMorePages", err)
	}

	pager.Reset()
	if pager.Exhausted() {
		t.Fatal("Exhausted() = true after Reset()")
	}
	if _, err := pager.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(cursors) != 2 || cursors[1] != "" {
		t.Errorf("cursors seen = %v, want two first-page fetches", cursors)
	}
}
