package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ademuri/workout-music-tools/internal/normalize"
)

// Enrichment helpers

// ArtistsNeedingEnrichment returns artist ids never enriched or enriched more
// than interval ago. A non-positive limit returns all of them.
func (s *Store) ArtistsNeedingEnrichment(ctx context.Context, interval time.Duration, limit int) ([]string, error) {
	return s.staleIDs(ctx, "artists", "artist_id", interval, limit)
}

func (s *Store) AlbumsNeedingEnrichment(ctx context.Context, interval time.Duration, limit int) ([]string, error) {
	return s.staleIDs(ctx, "albums", "album_id", interval, limit)
}

func (s *Store) staleIDs(ctx context.Context, table, idColumn string, interval time.Duration, limit int) ([]string, error) {
	threshold := formatTimestamp(s.now().Add(-interval))
	query := fmt.Sprintf(`
		SELECT %[2]s
		FROM %[1]s
		WHERE enriched_at IS NULL OR enriched_at < ?
		ORDER BY %[2]s`, table, idColumn)
	args := []any{threshold}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s for enrichment: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type ArtistEnrichment struct {
	ID         string
	Name       string
	Genres     []string
	Popularity int
	Followers  int
}

type AlbumEnrichment struct {
	ID          string
	Name        string
	AlbumType   string
	Label       string
	Genres      []string
	Popularity  int
	ReleaseDate *normalize.ReleaseDate
	TotalTracks int
}

func (s *Store) SaveArtistEnrichment(ctx context.Context, artists []ArtistEnrichment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	for _, a := range artists {
		genres, err := encodeGenres(a.Genres)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
UPDATE artists SET name = ?, name_clean = ?, genres = ?, popularity = ?, followers = ?, enriched_at = ?, last_updated_at = ?
WHERE artist_id = ?`,
			nullString(a.Name), nullString(normalize.CleanName(a.Name)), genres, a.Popularity, a.Followers, now, now, a.ID)
		if err != nil {
			return fmt.Errorf("enriching artist %q: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SaveAlbumEnrichment(ctx context.Context, albums []AlbumEnrichment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	for _, a := range albums {
		genres, err := encodeGenres(a.Genres)
		if err != nil {
			return err
		}
		date, year, precision := releaseColumns(a.ReleaseDate)
		_, err = tx.ExecContext(ctx, `
UPDATE albums SET name = ?, name_clean = ?, album_type = ?, label = ?, genres = ?, popularity = ?,
  release_date = COALESCE(CAST(? AS TEXT), release_date), release_year = COALESCE(CAST(? AS INTEGER), release_year),
  release_date_precision = COALESCE(CAST(? AS TEXT), release_date_precision), total_tracks = ?, enriched_at = ?, last_updated_at = ?
WHERE album_id = ?`,
			nullString(a.Name), nullString(normalize.CleanName(a.Name)), nullString(a.AlbumType), nullString(a.Label),
			genres, a.Popularity, date, year, precision, a.TotalTracks, now, now, a.ID)
		if err != nil {
			return fmt.Errorf("enriching album %q: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// MarkArtistsEnriched stamps ids the API no longer knows, so they are not
// asked for again until the interval passes.
func (s *Store) MarkArtistsEnriched(ctx context.Context, ids []string) error {
	return s.markEnriched(ctx, "artists", "artist_id", ids)
}

func (s *Store) MarkAlbumsEnriched(ctx context.Context, ids []string) error {
	return s.markEnriched(ctx, "albums", "album_id", ids)
}

func (s *Store) markEnriched(ctx context.Context, table, idColumn string, ids []string) error {
	now := s.timestamp()
	query := fmt.Sprintf("UPDATE %s SET enriched_at = ? WHERE %s = ?", table, idColumn)
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, query, now, id); err != nil {
			return fmt.Errorf("marking %s %q enriched: %w", table, id, err)
		}
	}
	return nil
}

func encodeGenres(genres []string) (sql.NullString, error) {
	if len(genres) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(genres)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding genres: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeGenres(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var genres []string
	if err := json.Unmarshal([]byte(s.String), &genres); err != nil {
		return nil, fmt.Errorf("decoding genres %q: %w", s.String, err)
	}
	return genres, nil
}

// Row readers

// TrackRow is a stored track master.
type TrackRow struct {
	ID            string
	Name          string
	ArtistID      string
	AlbumID       string
	ReleaseDate   string
	Precision     string
	DurationMS    int64
	Popularity    int
	ISRC          string
	FirstSeenAt   string
	LastUpdatedAt string
}

// GetTrack returns nil when the track is unknown.
func (s *Store) GetTrack(ctx context.Context, id string) (*TrackRow, error) {
	var t TrackRow
	var name, artist, album, date, precision, isrc sql.NullString
	var duration, popularity sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT track_id, name, artist_id, album_id, release_date, release_date_precision, duration_ms, popularity, isrc, first_seen_at, last_updated_at
FROM tracks WHERE track_id = ?`, id).Scan(
		&t.ID, &name, &artist, &album, &date, &precision, &duration, &popularity, &isrc, &t.FirstSeenAt, &t.LastUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting track %q: %w", id, err)
	}
	t.Name, t.ArtistID, t.AlbumID = name.String, artist.String, album.String
	t.ReleaseDate, t.Precision, t.ISRC = date.String, precision.String, isrc.String
	t.DurationMS, t.Popularity = duration.Int64, int(popularity.Int64)
	return &t, nil
}

// ArtistRow is a stored artist master.
type ArtistRow struct {
	ID         string
	Name       string
	Genres     []string
	Popularity int
	Followers  int64
	EnrichedAt string
}

func (s *Store) GetArtist(ctx context.Context, id string) (*ArtistRow, error) {
	var a ArtistRow
	var name, genres, enriched sql.NullString
	var popularity, followers sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT artist_id, name, genres, popularity, followers, enriched_at FROM artists WHERE artist_id = ?", id).Scan(
		&a.ID, &name, &genres, &popularity, &followers, &enriched)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist %q: %w", id, err)
	}
	a.Name, a.EnrichedAt = name.String, enriched.String
	a.Popularity, a.Followers = int(popularity.Int64), followers.Int64
	if a.Genres, err = decodeGenres(genres); err != nil {
		return nil, err
	}
	return &a, nil
}

// Association is one playlist_tracks row.
type Association struct {
	TrackID   string
	Position  int
	IsRemoved bool
}

// SnapshotTracks lists a playlist's rows for one snapshot date, live tracks
// in position order first.
func (s *Store) SnapshotTracks(ctx context.Context, playlistID string, date time.Time) ([]Association, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT track_id, position, is_removed
FROM playlist_tracks
WHERE playlist_id = ? AND snapshot_date = ?
ORDER BY is_removed, position, track_id`, playlistID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("querying snapshot of %s: %w", playlistID, err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var a Association
		var pos sql.NullInt64
		if err := rows.Scan(&a.TrackID, &pos, &a.IsRemoved); err != nil {
			return nil, err
		}
		a.Position = -1
		if pos.Valid {
			a.Position = int(pos.Int64)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
