package store

import (
	"context"
	"fmt"
)

type TrackPlaylistCount struct {
	TrackID   string `yaml:"track_id"`
	Name      string `yaml:"name"`
	Artist    string `yaml:"artist"`
	Playlists int64  `yaml:"playlists"`
}

type ArtistPlaylistCount struct {
	ArtistID  string `yaml:"artist_id"`
	Name      string `yaml:"name"`
	Playlists int64  `yaml:"playlists"`
}

// TopTracks ranks tracks by the number of playlists that currently list them.
// An empty category covers all playlists.
func (s *Store) TopTracks(ctx context.Context, category string, limit int) ([]TrackPlaylistCount, error) {
	query := `
	SELECT t.track_id, COALESCE(t.name, ''), COALESCE(t.artist_name, ''), COUNT(DISTINCT pt.playlist_id)
	FROM playlist_tracks pt
	INNER JOIN tracks t ON t.track_id = pt.track_id
	INNER JOIN playlists p ON p.playlist_id = pt.playlist_id AND p.snapshot_date = pt.snapshot_date
	WHERE pt.is_removed = false
	AND (? = '' OR p.category = ?)
	GROUP BY t.track_id, t.name, t.artist_name
	ORDER BY COUNT(DISTINCT pt.playlist_id) DESC, t.track_id
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, category, category, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top tracks: %w", err)
	}
	defer rows.Close()

	var results []TrackPlaylistCount
	for rows.Next() {
		var tc TrackPlaylistCount
		if err := rows.Scan(&tc.TrackID, &tc.Name, &tc.Artist, &tc.Playlists); err != nil {
			return nil, err
		}
		results = append(results, tc)
	}
	return results, rows.Err()
}

func (s *Store) TopArtists(ctx context.Context, category string, limit int) ([]ArtistPlaylistCount, error) {
	query := `
	SELECT t.artist_id, COALESCE(MAX(t.artist_name), ''), COUNT(DISTINCT pt.playlist_id)
	FROM playlist_tracks pt
	INNER JOIN tracks t ON t.track_id = pt.track_id
	INNER JOIN playlists p ON p.playlist_id = pt.playlist_id AND p.snapshot_date = pt.snapshot_date
	WHERE pt.is_removed = false
	AND t.artist_id IS NOT NULL
	AND (? = '' OR p.category = ?)
	GROUP BY t.artist_id
	ORDER BY COUNT(DISTINCT pt.playlist_id) DESC, t.artist_id
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, category, category, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top artists: %w", err)
	}
	defer rows.Close()

	var results []ArtistPlaylistCount
	for rows.Next() {
		var ac ArtistPlaylistCount
		if err := rows.Scan(&ac.ArtistID, &ac.Name, &ac.Playlists); err != nil {
			return nil, err
		}
		results = append(results, ac)
	}
	return results, rows.Err()
}
