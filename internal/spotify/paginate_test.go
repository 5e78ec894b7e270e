package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

func trackItemsPage(base string, offset, n, nullAt int, next string) string {
	var items []string
	for i := 0; i < n; i++ {
		if offset+i == nullAt {
			items = append(items, `{"added_at":"2024-01-01T00:00:00Z","track":null}`)
			continue
		}
		items = append(items, fmt.Sprintf(`{"added_at":"2024-01-01T00:00:00Z","track":{"id":"t%03d","name":"Track %d","duration_ms":200000}}`, offset+i, offset+i))
	}
	nextJSON := "null"
	if next != "" {
		nextJSON = fmt.Sprintf("%q", base+next)
	}
	return fmt.Sprintf(`{"items":[%s],"limit":100,"offset":%d,"total":120,"next":%s}`, strings.Join(items, ","), offset, nextJSON)
}

func TestPaginateSkipsNullItems(t *testing.T) {
	var pages int32
	var base string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		if r.URL.Query().Get("offset") == "100" {
			w.Write([]byte(trackItemsPage(base, 100, 20, -1, "")))
			return
		}
		w.Write([]byte(trackItemsPage(base, 0, 100, 42, "/v1/playlists/p1/tracks?offset=100&limit=100")))
	}), nil)
	base = srv.URL

	var skips []Skip
	var positions []int
	for entry, err := range c.PlaylistItems(context.Background(), "p1", 100, func(s Skip) { skips = append(skips, s) }) {
		if err != nil {
			t.Fatalf("PlaylistItems: %v", err)
		}
		positions = append(positions, entry.Position)
	}

	if len(positions) != 119 {
		t.Errorf("Expected 119 items, got %d", len(positions))
	}
	if got := atomic.LoadInt32(&pages); got != 2 {
		t.Errorf("Expected 2 page requests, got %d", got)
	}
	if len(skips) != 1 {
		t.Fatalf("Expected 1 skip, got %d", len(skips))
	}
	if skips[0].Position != 42 {
		t.Errorf("Expected skip at position 42, got %d", skips[0].Position)
	}
	if positions[len(positions)-1] != 119 {
		t.Errorf("Expected last position 119, got %d", positions[len(positions)-1])
	}
}

func TestPaginateSearchEnvelope(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "playlist" {
			t.Errorf("Expected type=playlist, got %q", got)
		}
		w.Write([]byte(`{"playlists":{"items":[{"id":"a","name":"A"},null,{"id":"b","name":"B"},{"id":"c","name":"C"}],"offset":0,"limit":50,"total":4,"next":null}}`))
	}), nil)

	skipped := 0
	var ids []string
	for entry, err := range c.SearchPlaylists(context.Background(), "gym", 50, 2, func(Skip) { skipped++ }) {
		if err != nil {
			t.Fatalf("SearchPlaylists: %v", err)
		}
		ids = append(ids, entry.Item.ID)
	}

	if strings.Join(ids, ",") != "a,b" {
		t.Errorf("Expected ids a,b (capped at 2), got %v", ids)
	}
	if skipped != 1 {
		t.Errorf("Expected 1 skipped null, got %d", skipped)
	}
}

func TestPaginateEmptyPageStops(t *testing.T) {
	var pages int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		// A next link with no items must not loop.
		w.Write([]byte(`{"items":[],"offset":0,"limit":100,"total":0,"next":"/v1/playlists/p1/tracks?offset=100"}`))
	}), nil)

	n := 0
	for _, err := range c.PlaylistItems(context.Background(), "p1", 100, nil) {
		if err != nil {
			t.Fatalf("PlaylistItems: %v", err)
		}
		n++
	}
	if n != 0 {
		t.Errorf("Expected no items, got %d", n)
	}
	if got := atomic.LoadInt32(&pages); got != 1 {
		t.Errorf("Expected 1 page request, got %d", got)
	}
}

func TestPaginateFailureEndsSequence(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), nil)

	errs := 0
	for _, err := range c.PlaylistItems(context.Background(), "p1", 100, nil) {
		if err == nil {
			t.Fatal("Expected only an error")
		}
		if !errors.Is(err, ErrFetchFailed) {
			t.Errorf("Expected ErrFetchFailed, got %v", err)
		}
		errs++
	}
	if errs != 1 {
		t.Errorf("Expected exactly one error, got %d", errs)
	}
}

func TestGetArtistsLimit(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"artists":[{"id":"a1","name":"One","genres":["edm"],"popularity":50,"followers":{"total":10}},null]}`))
	}), nil)

	ids := make([]string, MaxArtistsPerRequest+1)
	if _, err := c.GetArtists(context.Background(), ids); err == nil {
		t.Error("Expected error for too many ids")
	}

	artists, err := c.GetArtists(context.Background(), []string{"a1", "missing"})
	if err != nil {
		t.Fatalf("GetArtists: %v", err)
	}
	if len(artists) != 1 || artists[0].Followers.Total != 10 {
		t.Errorf("Expected one artist with 10 followers, got %+v", artists)
	}
}
