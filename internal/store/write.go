package store

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"time"

	"github.com/ademuri/workout-music-tools/internal/metrics"
	"github.com/ademuri/workout-music-tools/internal/normalize"
)

// Lineage source types.
const (
	SourceSearch   = "search"
	SourceCategory = "category"
)

// Playlist is the metadata recorded with each snapshot.
type Playlist struct {
	ID                string
	Name              string
	Description       string
	OwnerID           string
	OwnerName         string
	Followers         int
	TrackCount        int
	Category          string
	Query             string
	SpotifySnapshotID string
}

// PlaylistEntry is one track at one position of a snapshot.
type PlaylistEntry struct {
	Position int
	AddedAt  string
	Track    normalize.Track
}

// PlaylistBatch is everything loaded for one playlist in one transaction.
type PlaylistBatch struct {
	Playlist     Playlist
	SnapshotDate time.Time
	Entries      []PlaylistEntry
	Artists      []normalize.Artist
	Albums       []normalize.Album
}

// LoadResult counts what a LoadPlaylist call changed.
type LoadResult struct {
	SnapshotInserted bool
	TracksInserted   int
	TracksUpdated    int
	Associations     int
	Removed          int
	// Dropped counts rows of an earlier same-day load that this load replaced.
	Dropped          int
}

// LoadPlaylist writes a playlist snapshot with its masters, associations,
// lineage and popularity history. It is all-or-nothing and safe to repeat.
func (s *Store) LoadPlaylist(ctx context.Context, b PlaylistBatch) (LoadResult, error) {
	var res LoadResult
	if b.Playlist.ID == "" {
		return res, fmt.Errorf("playlist has no id")
	}
	date := formatDate(b.SnapshotDate)
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range normalize.Collapse(b.Artists, func(a normalize.Artist) string { return a.ID }) {
		if err := upsertArtist(ctx, tx, a, now); err != nil {
			return res, err
		}
	}
	for _, a := range normalize.Collapse(b.Albums, func(a normalize.Album) string { return a.ID }) {
		if err := upsertAlbum(ctx, tx, a, now); err != nil {
			return res, err
		}
	}

	tracks := make([]normalize.Track, 0, len(b.Entries))
	for _, e := range b.Entries {
		tracks = append(tracks, e.Track)
	}
	tracks = normalize.Collapse(tracks, func(t normalize.Track) string { return t.ID })
	for _, t := range tracks {
		inserted, err := upsertTrack(ctx, tx, t, now)
		if err != nil {
			return res, err
		}
		if inserted {
			res.TracksInserted++
		} else {
			res.TracksUpdated++
		}
	}

	res.SnapshotInserted, err = insertPlaylistSnapshot(ctx, tx, b.Playlist, date, now)
	if err != nil {
		return res, err
	}

	present := make(map[string]bool, len(b.Entries))
	for _, e := range b.Entries {
		if present[e.Track.ID] {
			continue
		}
		present[e.Track.ID] = true
		changed, err := putAssociation(ctx, tx, b.Playlist.ID, e.Track.ID, date, e.Position, e.AddedAt, false)
		if err != nil {
			return res, err
		}
		if changed {
			res.Associations++
		}
	}

	var gone []string
	res.Removed, gone, err = recordRemovals(ctx, tx, b.Playlist.ID, date, present)
	if err != nil {
		return res, err
	}

	keep := maps.Clone(present)
	for _, id := range gone {
		keep[id] = true
	}
	if res.Dropped, err = dropStale(ctx, tx, b.Playlist.ID, date, keep); err != nil {
		return res, err
	}

	for _, t := range tracks {
		if b.Playlist.Query != "" {
			if err := insertSource(ctx, tx, t.ID, SourceSearch, b.Playlist.Query, now); err != nil {
				return res, err
			}
		}
		if b.Playlist.Category != "" {
			if err := insertSource(ctx, tx, t.ID, SourceCategory, b.Playlist.Category, now); err != nil {
				return res, err
			}
		}
		if err := recordPopularity(ctx, tx, t.ID, date, t.Popularity); err != nil {
			return res, err
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing playlist %s: %w", b.Playlist.ID, err)
	}

	metrics.RowsLoaded.WithLabelValues("tracks").Add(float64(res.TracksInserted + res.TracksUpdated))
	metrics.RowsLoaded.WithLabelValues("playlist_tracks").Add(float64(res.Associations + res.Removed))
	if res.SnapshotInserted {
		metrics.RowsLoaded.WithLabelValues("playlists").Inc()
	}
	return res, nil
}

func upsertArtist(ctx context.Context, tx *sql.Tx, a normalize.Artist, now string) error {
	var id string
	err := tx.QueryRowContext(ctx, "SELECT artist_id FROM artists WHERE artist_id = ?", a.ID).Scan(&id)
	if err == sql.ErrNoRows {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO artists (artist_id, name, name_clean, first_seen_at, last_updated_at) VALUES (?, ?, ?, ?, ?)",
			a.ID, nullString(a.Name), nullString(a.NameClean), now, now)
		if err != nil {
			return fmt.Errorf("inserting artist %q: %w", a.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking artist %q: %w", a.ID, err)
	}

	// Enrichment columns belong to SaveArtistEnrichment.
	_, err = tx.ExecContext(ctx,
		"UPDATE artists SET name = ?, name_clean = ?, last_updated_at = ? WHERE artist_id = ?",
		nullString(a.Name), nullString(a.NameClean), now, a.ID)
	if err != nil {
		return fmt.Errorf("updating artist %q: %w", a.ID, err)
	}
	return nil
}

func upsertAlbum(ctx context.Context, tx *sql.Tx, a normalize.Album, now string) error {
	date, year, precision := releaseColumns(a.ReleaseDate)

	var id string
	err := tx.QueryRowContext(ctx, "SELECT album_id FROM albums WHERE album_id = ?", a.ID).Scan(&id)
	if err == sql.ErrNoRows {
		_, err := tx.ExecContext(ctx, `
INSERT INTO albums (album_id, name, name_clean, album_type, release_date, release_year, release_date_precision, total_tracks, first_seen_at, last_updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, nullString(a.Name), nullString(a.NameClean), nullString(a.AlbumType), date, year, precision, a.TotalTracks, now, now)
		if err != nil {
			return fmt.Errorf("inserting album %q: %w", a.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking album %q: %w", a.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE albums SET name = ?, name_clean = ?, album_type = ?, release_date = ?, release_year = ?, release_date_precision = ?, total_tracks = ?, last_updated_at = ?
WHERE album_id = ?`,
		nullString(a.Name), nullString(a.NameClean), nullString(a.AlbumType), date, year, precision, a.TotalTracks, now, a.ID)
	if err != nil {
		return fmt.Errorf("updating album %q: %w", a.ID, err)
	}
	return nil
}

// upsertTrack reports whether the track was new.
func upsertTrack(ctx context.Context, tx *sql.Tx, t normalize.Track, now string) (bool, error) {
	if t.ID == "" {
		return false, fmt.Errorf("track %q has no id", t.Name)
	}
	date, year, precision := releaseColumns(t.ReleaseDate)
	durationMS := t.Duration.Milliseconds()

	var id string
	err := tx.QueryRowContext(ctx, "SELECT track_id FROM tracks WHERE track_id = ?", t.ID).Scan(&id)
	if err == sql.ErrNoRows {
		_, err := tx.ExecContext(ctx, `
INSERT INTO tracks (track_id, name, name_clean, artist_id, artist_name, artist_name_clean, album_id, album_name,
  release_date, release_year, release_date_precision, duration_ms, popularity, explicit, is_playable, is_local, isrc,
  first_seen_at, last_updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, nullString(t.Name), nullString(t.NameClean), nullString(t.ArtistID), nullString(t.ArtistName),
			nullString(t.ArtistNameClean), nullString(t.AlbumID), nullString(t.AlbumName),
			date, year, precision, durationMS, t.Popularity, t.Explicit, nullBool(t.IsPlayable), t.IsLocal, nullString(t.ISRC),
			now, now)
		if err != nil {
			return false, fmt.Errorf("inserting track %q: %w", t.ID, err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking track %q: %w", t.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE tracks SET name = ?, name_clean = ?, artist_id = ?, artist_name = ?, artist_name_clean = ?, album_id = ?, album_name = ?,
  release_date = ?, release_year = ?, release_date_precision = ?, duration_ms = ?, popularity = ?, explicit = ?,
  is_playable = ?, is_local = ?, isrc = ?, last_updated_at = ?
WHERE track_id = ?`,
		nullString(t.Name), nullString(t.NameClean), nullString(t.ArtistID), nullString(t.ArtistName),
		nullString(t.ArtistNameClean), nullString(t.AlbumID), nullString(t.AlbumName),
		date, year, precision, durationMS, t.Popularity, t.Explicit, nullBool(t.IsPlayable), t.IsLocal, nullString(t.ISRC),
		now, t.ID)
	if err != nil {
		return false, fmt.Errorf("updating track %q: %w", t.ID, err)
	}
	return false, nil
}

func insertPlaylistSnapshot(ctx context.Context, tx *sql.Tx, p Playlist, date, now string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		"SELECT playlist_id FROM playlists WHERE playlist_id = ? AND snapshot_date = ?", p.ID, date).Scan(&id)
	if err == nil {
		// A later load on the same day wins.
		_, err = tx.ExecContext(ctx, `
UPDATE playlists SET name = ?, name_clean = ?, description = ?, owner_id = ?, owner_name = ?, followers = ?, track_count = ?,
  category = ?, search_query = ?, spotify_snapshot_id = ?, collected_at = ?
WHERE playlist_id = ? AND snapshot_date = ?`,
			nullString(p.Name), nullString(normalize.CleanName(p.Name)), nullString(p.Description),
			nullString(p.OwnerID), nullString(p.OwnerName), p.Followers, p.TrackCount,
			nullString(p.Category), nullString(p.Query), nullString(p.SpotifySnapshotID), now, p.ID, date)
		if err != nil {
			return false, fmt.Errorf("updating playlist %q: %w", p.ID, err)
		}
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("checking playlist %q: %w", p.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO playlists (playlist_id, snapshot_date, name, name_clean, description, owner_id, owner_name, followers, track_count,
  category, search_query, spotify_snapshot_id, collected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, date, nullString(p.Name), nullString(normalize.CleanName(p.Name)), nullString(p.Description),
		nullString(p.OwnerID), nullString(p.OwnerName), p.Followers, p.TrackCount,
		nullString(p.Category), nullString(p.Query), nullString(p.SpotifySnapshotID), now)
	if err != nil {
		return false, fmt.Errorf("inserting playlist %q: %w", p.ID, err)
	}
	return true, nil
}

// putAssociation writes one playlist_tracks row. It reports whether the row
// is new or changed; an identical row is left alone.
func putAssociation(ctx context.Context, tx *sql.Tx, playlistID, trackID, date string, position int, addedAt string, removed bool) (bool, error) {
	pos := sql.NullInt64{Int64: int64(position), Valid: position >= 0}

	var oldPos sql.NullInt64
	var oldRemoved bool
	err := tx.QueryRowContext(ctx,
		"SELECT position, is_removed FROM playlist_tracks WHERE playlist_id = ? AND track_id = ? AND snapshot_date = ?",
		playlistID, trackID, date).Scan(&oldPos, &oldRemoved)
	if err == nil {
		if oldPos == pos && oldRemoved == removed {
			return false, nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE playlist_tracks SET position = ?, added_at = ?, is_removed = ? WHERE playlist_id = ? AND track_id = ? AND snapshot_date = ?",
			pos, nullString(addedAt), removed, playlistID, trackID, date)
		if err != nil {
			return false, fmt.Errorf("updating playlist track %s/%s: %w", playlistID, trackID, err)
		}
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("checking playlist track %s/%s: %w", playlistID, trackID, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO playlist_tracks (playlist_id, track_id, snapshot_date, position, added_at, is_removed) VALUES (?, ?, ?, ?, ?, ?)",
		playlistID, trackID, date, pos, nullString(addedAt), removed)
	if err != nil {
		return false, fmt.Errorf("inserting playlist track %s/%s: %w", playlistID, trackID, err)
	}
	return true, nil
}

// dropStale deletes rows an earlier load of the same day wrote for tracks
// that this load neither lists nor marks removed.
func dropStale(ctx context.Context, tx *sql.Tx, playlistID, date string, keep map[string]bool) (int, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT track_id FROM playlist_tracks WHERE playlist_id = ? AND snapshot_date = ?", playlistID, date)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot %s of %s: %w", date, playlistID, err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ? AND snapshot_date = ?",
			playlistID, id, date)
		if err != nil {
			return 0, fmt.Errorf("deleting playlist track %s/%s: %w", playlistID, id, err)
		}
	}
	return len(stale), nil
}

// recordRemovals marks tracks that were live in the playlist's previous
// snapshot and are missing from this one.
func recordRemovals(ctx context.Context, tx *sql.Tx, playlistID, date string, present map[string]bool) (int, []string, error) {
	var prev sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT MAX(snapshot_date) FROM playlist_tracks WHERE playlist_id = ? AND snapshot_date < ?",
		playlistID, date).Scan(&prev)
	if err != nil {
		return 0, nil, fmt.Errorf("finding previous snapshot of %s: %w", playlistID, err)
	}
	if !prev.Valid {
		return 0, nil, nil
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT track_id FROM playlist_tracks WHERE playlist_id = ? AND snapshot_date = ? AND is_removed = ?",
		playlistID, prev.String, false)
	if err != nil {
		return 0, nil, fmt.Errorf("reading snapshot %s of %s: %w", prev.String, playlistID, err)
	}
	var gone []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, nil, err
		}
		if !present[id] {
			gone = append(gone, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	removed := 0
	for _, id := range gone {
		changed, err := putAssociation(ctx, tx, playlistID, id, date, -1, "", true)
		if err != nil {
			return removed, nil, err
		}
		if changed {
			removed++
		}
	}
	return removed, gone, nil
}

func insertSource(ctx context.Context, tx *sql.Tx, trackID, sourceType, sourceID, now string) error {
	var id string
	err := tx.QueryRowContext(ctx,
		"SELECT track_id FROM track_sources WHERE track_id = ? AND source_type = ? AND source_id = ?",
		trackID, sourceType, sourceID).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking source of %s: %w", trackID, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO track_sources (track_id, source_type, source_id, first_seen_at) VALUES (?, ?, ?, ?)",
		trackID, sourceType, sourceID, now)
	if err != nil {
		return fmt.Errorf("inserting source of %s: %w", trackID, err)
	}
	return nil
}

func recordPopularity(ctx context.Context, tx *sql.Tx, trackID, date string, popularity int) error {
	var count int64
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT playlist_id) FROM playlist_tracks WHERE track_id = ? AND snapshot_date = ? AND is_removed = ?",
		trackID, date, false).Scan(&count)
	if err != nil {
		return fmt.Errorf("counting playlists of %s: %w", trackID, err)
	}

	var id string
	err = tx.QueryRowContext(ctx,
		"SELECT track_id FROM track_popularity_history WHERE track_id = ? AND snapshot_date = ?",
		trackID, date).Scan(&id)
	if err == sql.ErrNoRows {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO track_popularity_history (track_id, snapshot_date, popularity, playlist_count) VALUES (?, ?, ?, ?)",
			trackID, date, popularity, count)
		if err != nil {
			return fmt.Errorf("inserting popularity of %s: %w", trackID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking popularity of %s: %w", trackID, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE track_popularity_history SET popularity = ?, playlist_count = ? WHERE track_id = ? AND snapshot_date = ?",
		popularity, count, trackID, date)
	if err != nil {
		return fmt.Errorf("updating popularity of %s: %w", trackID, err)
	}
	return nil
}

func releaseColumns(d *normalize.ReleaseDate) (sql.NullString, sql.NullInt64, sql.NullString) {
	if d == nil {
		return sql.NullString{}, sql.NullInt64{}, sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true},
		sql.NullInt64{Int64: int64(d.Year), Valid: true},
		sql.NullString{String: d.Precision.String(), Valid: true}
}
