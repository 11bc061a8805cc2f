package api

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoMorePages is returned by Pager.Next once the backend reports an
	// empty next cursor.
	ErrNoMorePages = errors.New("api: no more pages")

	// ErrLoadInProgress is returned when Next is called while another page
	// load for the same pager is still in flight.
	ErrLoadInProgress = errors.New("api: page load already in flight")
)

// fetchFunc loads one page: it receives the cursor of the page to fetch
// (empty for the first) and returns the items plus the next cursor.
type fetchFunc[T any] func(ctx context.Context, cursor string, size int) ([]T, string, error)

// Pager drives cursor pagination for the list endpoints: it tracks the
// current cursor, whether the end was reached, and guards against duplicate
// concurrent loads. A failed load does not advance the cursor, so calling
// Next again retries the same page.
type Pager[T any] struct {
	mu        sync.Mutex
	fetch     fetchFunc[T]
	size      int
	cursor    string
	loading   bool
	exhausted bool
}

// NewPager builds a pager over fetch starting at the first page.
func NewPager[T any](size int, fetch fetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch, size: size}
}

// Next loads the next page. It returns ErrNoMorePages once exhausted and
// ErrLoadInProgress if a load is already running.
func (p *Pager[T]) Next(ctx context.Context) ([]T, error) {
	p.mu.Lock()
	if p.exhausted {
		p.mu.Unlock()
		return nil, ErrNoMorePages
	}
	if p.loading {
		p.mu.Unlock()
		return nil, ErrLoadInProgress
	}
	p.loading = true
	cursor := p.cursor
	size := p.size
	p.mu.Unlock()

	items, next, err := p.fetch(ctx, cursor, size)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		return nil, err
	}
	p.cursor = next
	if next == "" {
		p.exhausted = true
	}
	return items, nil
}

// Exhausted reports whether the last page was reached.
func (p *Pager[T]) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted
}

// Reset rewinds the pager to the first page.
func (p *Pager[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = ""
	p.exhausted = false
}
