package spotify

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
)

const (
	MaxArtistsPerRequest = 50
	MaxAlbumsPerRequest  = 20
	MaxSearchLimit       = 50
	MaxItemsPageLimit    = 100
)

// SearchPlaylists walks playlist search results for query. Spotify returns
// nulls inside search pages; those are reported through onSkip.
func (c *Client) SearchPlaylists(ctx context.Context, query string, limit, maxItems int, onSkip func(Skip)) iter.Seq2[Entry[Playlist], error] {
	return Paginate(ctx, c, PageRequest[Playlist]{
		Endpoint: "/v1/search",
		Params: map[string]string{
			"q":     query,
			"type":  "playlist",
			"limit": strconv.Itoa(pageSize(limit, MaxSearchLimit)),
		},
		Envelope: "playlists",
		MaxItems: maxItems,
		IsPlaceholder: func(p *Playlist) bool {
			return p.ID == ""
		},
		OnSkip: onSkip,
	})
}

// GetPlaylist fetches the full playlist object, which carries followers.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	var p Playlist
	params := map[string]string{
		"fields": "id,name,description,owner(id,display_name),followers(total),tracks(total),snapshot_id,public,collaborative",
	}
	if err := c.Get(ctx, "/v1/playlists/"+url.PathEscape(id), params, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlaylistItems walks a playlist's tracks. Items whose track is null are
// skipped and reported.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string, limit int, onSkip func(Skip)) iter.Seq2[Entry[PlaylistItem], error] {
	return Paginate(ctx, c, PageRequest[PlaylistItem]{
		Endpoint: "/v1/playlists/" + url.PathEscape(playlistID) + "/tracks",
		Params: map[string]string{
			"limit":  strconv.Itoa(pageSize(limit, MaxItemsPageLimit)),
			"offset": "0",
		},
		IsPlaceholder: func(it *PlaylistItem) bool {
			return it.Track == nil
		},
		OnSkip: onSkip,
	})
}

// GetArtists fetches up to MaxArtistsPerRequest artists. Unknown ids come
// back as nil entries and are dropped.
func (c *Client) GetArtists(ctx context.Context, ids []string) ([]*Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxArtistsPerRequest {
		return nil, fmt.Errorf("at most %d artists per request, got %d", MaxArtistsPerRequest, len(ids))
	}
	var resp artistsResponse
	if err := c.Get(ctx, "/v1/artists", map[string]string{"ids": strings.Join(ids, ",")}, &resp); err != nil {
		return nil, err
	}
	return compact(resp.Artists), nil
}

// GetAlbums fetches up to MaxAlbumsPerRequest albums.
func (c *Client) GetAlbums(ctx context.Context, ids []string) ([]*Album, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxAlbumsPerRequest {
		return nil, fmt.Errorf("at most %d albums per request, got %d", MaxAlbumsPerRequest, len(ids))
	}
	var resp albumsResponse
	if err := c.Get(ctx, "/v1/albums", map[string]string{"ids": strings.Join(ids, ",")}, &resp); err != nil {
		return nil, err
	}
	return compact(resp.Albums), nil
}

func compact[T any](in []*T) []*T {
	out := in[:0]
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// pageSize falls back to the endpoint maximum when v is unset or too large.
func pageSize(v, max int) int {
	if v < 1 || v > max {
		return max
	}
	return v
}
