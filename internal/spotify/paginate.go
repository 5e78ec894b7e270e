package spotify

import (
	"context"
	"fmt"
	"iter"

	"github.com/goccy/go-json"
)

// PageRequest describes a paged collection.
type PageRequest[T any] struct {
	Endpoint string
	Params   map[string]string
	// Envelope names the key the paging object is nested under, e.g.
	// "playlists" for search results. Empty means the body is the page.
	Envelope string
	// MaxItems stops the walk after that many yielded items; 0 is unbounded.
	MaxItems int
	// IsPlaceholder flags items that decoded but carry nothing usable.
	IsPlaceholder func(*T) bool
	OnSkip        func(Skip)
}

// Entry is one item and where it was found.
type Entry[T any] struct {
	Item     *T
	Position int
	Cursor   string
}

// Skip locates a null or placeholder item.
type Skip struct {
	Endpoint string
	Cursor   string
	Position int
}

// Paginate walks a collection lazily, one page per pull. A fetch failure is
// yielded once and ends the sequence.
func Paginate[T any](ctx context.Context, c *Client, req PageRequest[T]) iter.Seq2[Entry[T], error] {
	return func(yield func(Entry[T], error) bool) {
		cursor := req.Endpoint
		params := req.Params
		yielded := 0

		for cursor != "" {
			page, err := fetchPage[T](ctx, c, cursor, params, req.Envelope)
			if err != nil {
				yield(Entry[T]{Cursor: cursor}, err)
				return
			}
			if len(page.Items) == 0 {
				return
			}

			for i, item := range page.Items {
				pos := page.Offset + i
				if item == nil || (req.IsPlaceholder != nil && req.IsPlaceholder(item)) {
					if req.OnSkip != nil {
						req.OnSkip(Skip{Endpoint: endpointPath(req.Endpoint), Cursor: cursor, Position: pos})
					}
					continue
				}
				if !yield(Entry[T]{Item: item, Position: pos, Cursor: cursor}, nil) {
					return
				}
				yielded++
				if req.MaxItems > 0 && yielded >= req.MaxItems {
					return
				}
			}

			// next links carry their own query string.
			cursor = page.Next
			params = nil
		}
	}
}

func fetchPage[T any](ctx context.Context, c *Client, endpoint string, params map[string]string, envelope string) (*Page[T], error) {
	page := &Page[T]{}
	if envelope == "" {
		if err := c.Get(ctx, endpoint, params, page); err != nil {
			return nil, err
		}
		return page, nil
	}

	var wrapped map[string]json.RawMessage
	if err := c.Get(ctx, endpoint, params, &wrapped); err != nil {
		return nil, err
	}
	raw, ok := wrapped[envelope]
	if !ok {
		return nil, fmt.Errorf("response from %s has no %q key", endpointPath(endpoint), envelope)
	}
	if err := json.Unmarshal(raw, page); err != nil {
		return nil, fmt.Errorf("decoding %s page: %w", envelope, err)
	}
	return page, nil
}
