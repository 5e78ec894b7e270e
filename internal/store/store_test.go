package store

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/ademuri/workout-music-tools/internal/normalize"
	"github.com/ademuri/workout-music-tools/internal/quality"
)

var testDrivers = []string{DriverSQLite, DriverDuckDB}

func createTestDb(t *testing.T, driver string) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "workout.db")

	store, err := New(driver, dbPath)
	if err != nil {
		t.Fatalf("New(%s, %s) error: %v", driver, dbPath, err)
	}

	return store
}

// forEachDriver runs test against a fresh store for every supported driver.
func forEachDriver(t *testing.T, test func(t *testing.T, s *Store)) {
	for _, driver := range testDrivers {
		t.Run(driver, func(t *testing.T) {
			s := createTestDb(t, driver)
			defer s.Close()
			test(t, s)
		})
	}
}

var day1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testTrack(id string, popularity int) normalize.Track {
	date := normalize.ReleaseDate{Year: 2013, Month: 5, Precision: normalize.PrecisionMonth}
	return normalize.Track{
		ID:          id,
		Name:        "Track " + id,
		NameClean:   "track " + id,
		ArtistID:    "artist1",
		ArtistName:  "Artist One",
		AlbumID:     "album1",
		AlbumName:   "Album One",
		ReleaseDate: &date,
		Duration:    3 * time.Minute,
		Popularity:  popularity,
		ISRC:        "ISRC" + id,
	}
}

func testBatch(playlistID string, date time.Time, trackIDs ...string) PlaylistBatch {
	b := PlaylistBatch{
		Playlist: Playlist{
			ID:       playlistID,
			Name:     "Gym " + playlistID,
			Category: "strength_weights",
			Query:    "gym workout",
		},
		SnapshotDate: date,
		Artists:      []normalize.Artist{{ID: "artist1", Name: "Artist One", NameClean: "artist one"}},
		Albums:       []normalize.Album{{ID: "album1", Name: "Album One", NameClean: "album one"}},
	}
	for i, id := range trackIDs {
		b.Entries = append(b.Entries, PlaylistEntry{Position: i, AddedAt: "2024-01-01T00:00:00Z", Track: testTrack(id, 50)})
	}
	return b
}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func TestUnknownDriver(t *testing.T) {
	if _, err := New("postgres", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

func TestLoadPlaylistIdempotent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		batch := testBatch("p1", day1, "a", "b", "c")
		res, err := s.LoadPlaylist(ctx, batch)
		if err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}
		if !res.SnapshotInserted || res.Associations != 3 || res.TracksInserted != 3 {
			t.Errorf("Unexpected first load result: %+v", res)
		}

		res, err = s.LoadPlaylist(ctx, batch)
		if err != nil {
			t.Fatalf("LoadPlaylist (repeat): %v", err)
		}
		if res.SnapshotInserted || res.Associations != 0 || res.TracksUpdated != 3 {
			t.Errorf("Unexpected repeat load result: %+v", res)
		}

		for _, c := range []struct {
			query string
			want  int
		}{
			{"SELECT COUNT(*) FROM playlists", 1},
			{"SELECT COUNT(*) FROM tracks", 3},
			{"SELECT COUNT(*) FROM artists", 1},
			{"SELECT COUNT(*) FROM albums", 1},
			{"SELECT COUNT(*) FROM playlist_tracks", 3},
			{"SELECT COUNT(*) FROM track_sources", 6},
			{"SELECT COUNT(*) FROM track_popularity_history", 3},
		} {
			if got := countRows(t, s, c.query); got != c.want {
				t.Errorf("%s: expected %d, got %d", c.query, c.want, got)
			}
		}
	})
}

func TestLoadPlaylistKeepsFirstSeen(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		s.SetClock(func() time.Time { return day1 })
		if _, err := s.LoadPlaylist(ctx, testBatch("p1", day1, "a")); err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}

		later := day1.Add(48 * time.Hour)
		s.SetClock(func() time.Time { return later })
		batch := testBatch("p1", later, "a")
		batch.Entries[0].Track.Popularity = 77
		if _, err := s.LoadPlaylist(ctx, batch); err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}

		track, err := s.GetTrack(ctx, "a")
		if err != nil {
			t.Fatalf("GetTrack: %v", err)
		}
		if track == nil {
			t.Fatal("Expected track a")
		}
		if track.FirstSeenAt != formatTimestamp(day1) {
			t.Errorf("Expected first_seen_at %s, got %s", formatTimestamp(day1), track.FirstSeenAt)
		}
		if track.LastUpdatedAt != formatTimestamp(later) {
			t.Errorf("Expected last_updated_at %s, got %s", formatTimestamp(later), track.LastUpdatedAt)
		}
		if track.Popularity != 77 {
			t.Errorf("Expected popularity 77, got %d", track.Popularity)
		}
		if track.ReleaseDate != "2013-05-01" || track.Precision != "month" {
			t.Errorf("Expected release 2013-05-01/month, got %s/%s", track.ReleaseDate, track.Precision)
		}
		if got := countRows(t, s, "SELECT COUNT(*) FROM track_popularity_history WHERE track_id = 'a'"); got != 2 {
			t.Errorf("Expected 2 popularity rows, got %d", got)
		}
	})
}

func TestLoadPlaylistRejectsMissingID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {

		batch := testBatch("p1", day1, "a", "")
		if _, err := s.LoadPlaylist(context.Background(), batch); err == nil {
			t.Fatal("Expected error loading a track without id")
		}
		// The whole batch rolls back.
		if got := countRows(t, s, "SELECT COUNT(*) FROM tracks"); got != 0 {
			t.Errorf("Expected no tracks after rollback, got %d", got)
		}
		if got := countRows(t, s, "SELECT COUNT(*) FROM playlists"); got != 0 {
			t.Errorf("Expected no playlists after rollback, got %d", got)
		}
	})
}

func TestRemovalDetection(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		day2 := day1.AddDate(0, 0, 1)
		day3 := day1.AddDate(0, 0, 2)

		if _, err := s.LoadPlaylist(ctx, testBatch("p1", day1, "a", "b", "c")); err != nil {
			t.Fatalf("LoadPlaylist day1: %v", err)
		}
		res, err := s.LoadPlaylist(ctx, testBatch("p1", day2, "a", "c"))
		if err != nil {
			t.Fatalf("LoadPlaylist day2: %v", err)
		}
		if res.Removed != 1 {
			t.Errorf("Expected 1 removal, got %d", res.Removed)
		}

		rows, err := s.SnapshotTracks(ctx, "p1", day2)
		if err != nil {
			t.Fatalf("SnapshotTracks: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("Expected 3 rows for day2, got %+v", rows)
		}
		last := rows[2]
		if last.TrackID != "b" || !last.IsRemoved || last.Position != -1 {
			t.Errorf("Expected removed row for b, got %+v", last)
		}

		// Day 1 history is untouched.
		if got := countRows(t, s, "SELECT COUNT(*) FROM playlist_tracks WHERE snapshot_date = ? AND is_removed = ?", formatDate(day1), false); got != 3 {
			t.Errorf("Expected 3 live rows on day1, got %d", got)
		}

		// b was already recorded as removed and is not recorded again.
		res, err = s.LoadPlaylist(ctx, testBatch("p1", day3, "a", "c"))
		if err != nil {
			t.Fatalf("LoadPlaylist day3: %v", err)
		}
		if res.Removed != 0 {
			t.Errorf("Expected no removals on day3, got %d", res.Removed)
		}

		// Re-running day2 changes nothing.
		res, err = s.LoadPlaylist(ctx, testBatch("p1", day2, "a", "c"))
		if err != nil {
			t.Fatalf("LoadPlaylist day2 again: %v", err)
		}
		if res.Removed != 0 || res.Associations != 0 {
			t.Errorf("Expected no changes re-running day2, got %+v", res)
		}
	})
}

func TestSameDayReloadReplacesSnapshot(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		if _, err := s.LoadPlaylist(ctx, testBatch("p1", day1, "a", "b", "c")); err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}
		batch := testBatch("p1", day1, "a", "c", "d")
		batch.Playlist.Name = "Gym p1 renamed"
		res, err := s.LoadPlaylist(ctx, batch)
		if err != nil {
			t.Fatalf("LoadPlaylist (reload): %v", err)
		}
		// c moved from 2 to 1 and d is new; a is unchanged.
		if res.SnapshotInserted || res.Associations != 2 || res.Dropped != 1 || res.Removed != 0 {
			t.Errorf("Unexpected reload result: %+v", res)
		}

		rows, err := s.SnapshotTracks(ctx, "p1", day1)
		if err != nil {
			t.Fatalf("SnapshotTracks: %v", err)
		}
		var got []string
		for _, r := range rows {
			if r.IsRemoved {
				t.Errorf("Unexpected removed row %+v", r)
			}
			got = append(got, r.TrackID)
		}
		if want := []string{"a", "c", "d"}; !slices.Equal(got, want) {
			t.Errorf("Expected tracks %v, got %v", want, got)
		}

		var name string
		if err := s.db.QueryRow("SELECT name FROM playlists WHERE playlist_id = 'p1'").Scan(&name); err != nil {
			t.Fatalf("reading playlist name: %v", err)
		}
		if name != "Gym p1 renamed" {
			t.Errorf("Expected the later load's name, got %q", name)
		}
	})
}

func TestSameDayReloadRevivesRemoval(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		day2 := day1.AddDate(0, 0, 1)

		for _, b := range []PlaylistBatch{
			testBatch("p1", day1, "a", "b", "c"),
			testBatch("p1", day2, "a", "b", "c"),
		} {
			if _, err := s.LoadPlaylist(ctx, b); err != nil {
				t.Fatalf("LoadPlaylist: %v", err)
			}
		}

		res, err := s.LoadPlaylist(ctx, testBatch("p1", day2, "a", "c"))
		if err != nil {
			t.Fatalf("LoadPlaylist without b: %v", err)
		}
		if res.Removed != 1 || res.Dropped != 0 {
			t.Errorf("Expected b marked removed, got %+v", res)
		}
		if got := countRows(t, s, "SELECT COUNT(*) FROM playlist_tracks WHERE snapshot_date = ? AND is_removed = ?", formatDate(day2), true); got != 1 {
			t.Errorf("Expected 1 removed row on day2, got %d", got)
		}

		res, err = s.LoadPlaylist(ctx, testBatch("p1", day2, "a", "b", "c"))
		if err != nil {
			t.Fatalf("LoadPlaylist with b back: %v", err)
		}
		if res.Removed != 0 {
			t.Errorf("Expected no removals, got %+v", res)
		}
		if got := countRows(t, s, "SELECT COUNT(*) FROM playlist_tracks WHERE snapshot_date = ? AND is_removed = ?", formatDate(day2), false); got != 3 {
			t.Errorf("Expected 3 live rows on day2, got %d", got)
		}
	})
}

func TestPopularityPlaylistCount(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		for _, p := range []string{"p1", "p2"} {
			if _, err := s.LoadPlaylist(ctx, testBatch(p, day1, "a")); err != nil {
				t.Fatalf("LoadPlaylist %s: %v", p, err)
			}
		}
		if got := countRows(t, s, "SELECT playlist_count FROM track_popularity_history WHERE track_id = 'a'"); got != 2 {
			t.Errorf("Expected playlist_count 2, got %d", got)
		}
	})
}

func TestEnrichment(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		if _, err := s.LoadPlaylist(ctx, testBatch("p1", day1, "a")); err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}

		ids, err := s.ArtistsNeedingEnrichment(ctx, 24*time.Hour, 0)
		if err != nil {
			t.Fatalf("ArtistsNeedingEnrichment: %v", err)
		}
		if len(ids) != 1 || ids[0] != "artist1" {
			t.Fatalf("Expected [artist1], got %v", ids)
		}

		err = s.SaveArtistEnrichment(ctx, []ArtistEnrichment{{
			ID: "artist1", Name: "Artist One", Genres: []string{"edm", "house"}, Popularity: 70, Followers: 12345,
		}})
		if err != nil {
			t.Fatalf("SaveArtistEnrichment: %v", err)
		}

		// Loading the artist again from a track must keep enrichment.
		if _, err := s.LoadPlaylist(ctx, testBatch("p2", day1, "b")); err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}
		a, err := s.GetArtist(ctx, "artist1")
		if err != nil {
			t.Fatalf("GetArtist: %v", err)
		}
		if len(a.Genres) != 2 || a.Genres[1] != "house" || a.Followers != 12345 {
			t.Errorf("Expected enrichment to survive reload, got %+v", a)
		}

		ids, err = s.ArtistsNeedingEnrichment(ctx, 24*time.Hour, 0)
		if err != nil {
			t.Fatalf("ArtistsNeedingEnrichment: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("Expected no stale artists, got %v", ids)
		}

		albums, err := s.AlbumsNeedingEnrichment(ctx, 24*time.Hour, 10)
		if err != nil {
			t.Fatalf("AlbumsNeedingEnrichment: %v", err)
		}
		if len(albums) != 1 {
			t.Fatalf("Expected 1 album, got %v", albums)
		}
		date := normalize.ReleaseDate{Year: 2013, Month: 5, Day: 15, Precision: normalize.PrecisionDay}
		err = s.SaveAlbumEnrichment(ctx, []AlbumEnrichment{{ID: "album1", Name: "Album One", Label: "XL", ReleaseDate: &date}})
		if err != nil {
			t.Fatalf("SaveAlbumEnrichment: %v", err)
		}
		if got := countRows(t, s, "SELECT COUNT(*) FROM albums WHERE label = 'XL' AND release_date = '2013-05-15'"); got != 1 {
			t.Errorf("Expected enriched album, got %d", got)
		}
	})
}

func TestAppendLogsAndSummary(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		if _, err := s.LoadPlaylist(ctx, testBatch("p1", day1, "a", "b")); err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}

		issues := []quality.Issue{
			{RunID: "run1", RecordType: quality.RecordTrack, RecordID: "a", IssueType: quality.MissingField, Severity: quality.SeverityMedium},
			{RunID: "run1", RecordType: quality.RecordTrack, RecordID: "b", IssueType: quality.MissingField, Severity: quality.SeverityMedium},
			{RunID: "run2", RecordType: quality.RecordTrack, RecordID: "p1#3", IssueType: quality.MissingID, Severity: quality.SeverityHigh},
		}
		if err := s.AppendIssues(ctx, issues); err != nil {
			t.Fatalf("AppendIssues: %v", err)
		}
		if err := s.AppendAPICall(ctx, APICall{RunID: "run1", Endpoint: "/v1/search", Method: "GET", Status: 200, Latency: 12 * time.Millisecond, Attempt: 1}); err != nil {
			t.Fatalf("AppendAPICall: %v", err)
		}
		if err := s.AppendRun(ctx, Run{ID: "run1", StartedAt: day1, FinishedAt: day1.Add(time.Minute), Status: RunSucceeded, Playlists: 1, Entries: 2, Issues: 2}); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}

		sum, err := s.Summary(ctx)
		if err != nil {
			t.Fatalf("Summary: %v", err)
		}
		if sum.Playlists != 1 || sum.Tracks != 2 || sum.Associations != 2 || sum.Issues != 3 || sum.APICalls != 1 || sum.Runs != 1 {
			t.Errorf("Unexpected summary: %+v", sum)
		}
		if sum.LatestSnapshot != "2024-03-01" {
			t.Errorf("Expected latest snapshot 2024-03-01, got %q", sum.LatestSnapshot)
		}

		counts, err := s.IssueCounts(ctx, "run1")
		if err != nil {
			t.Fatalf("IssueCounts: %v", err)
		}
		if len(counts) != 1 || counts[0].Count != 2 || counts[0].IssueType != "missing_field" {
			t.Errorf("Unexpected issue counts: %+v", counts)
		}

		high, err := s.RecentIssues(ctx, "high", 10)
		if err != nil {
			t.Fatalf("RecentIssues: %v", err)
		}
		if len(high) != 1 || high[0].RecordID != "p1#3" {
			t.Errorf("Unexpected high issues: %+v", high)
		}

		runs, err := s.RecentRuns(ctx, 5)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) != 1 || runs[0].Status != RunSucceeded {
			t.Errorf("Unexpected runs: %+v", runs)
		}

		cats, err := s.CategoryBreakdown(ctx)
		if err != nil {
			t.Fatalf("CategoryBreakdown: %v", err)
		}
		if len(cats) != 1 || cats[0].Category != "strength_weights" || cats[0].Tracks != 2 {
			t.Errorf("Unexpected categories: %+v", cats)
		}
	})
}

func TestTopTracks(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		loads := []PlaylistBatch{
			testBatch("p1", day1, "a", "b"),
			testBatch("p2", day1, "a"),
			testBatch("p3", day1, "a", "c"),
		}
		for _, b := range loads {
			if _, err := s.LoadPlaylist(ctx, b); err != nil {
				t.Fatalf("LoadPlaylist: %v", err)
			}
		}

		top, err := s.TopTracks(ctx, "", 2)
		if err != nil {
			t.Fatalf("TopTracks: %v", err)
		}
		if len(top) != 2 || top[0].TrackID != "a" || top[0].Playlists != 3 {
			t.Errorf("Unexpected top tracks: %+v", top)
		}

		artists, err := s.TopArtists(ctx, "strength_weights", 5)
		if err != nil {
			t.Fatalf("TopArtists: %v", err)
		}
		if len(artists) != 1 || artists[0].Playlists != 3 {
			t.Errorf("Unexpected top artists: %+v", artists)
		}

		none, err := s.TopTracks(ctx, "yoga_stretching", 5)
		if err != nil {
			t.Fatalf("TopTracks: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("Expected no yoga tracks, got %+v", none)
		}
	})
}
