package store

// Schema statements are run one at a time and must be valid for both SQLite
// and DuckDB. Timestamps are stored as fixed-width UTC text so that string
// comparison orders them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS playlists (
  playlist_id TEXT NOT NULL,
  snapshot_date TEXT NOT NULL,
  name TEXT,
  name_clean TEXT,
  description TEXT,
  owner_id TEXT,
  owner_name TEXT,
  followers BIGINT,
  track_count BIGINT,
  category TEXT,
  search_query TEXT,
  spotify_snapshot_id TEXT,
  collected_at TEXT,
  PRIMARY KEY (playlist_id, snapshot_date)
)`,

	`CREATE TABLE IF NOT EXISTS tracks (
  track_id TEXT PRIMARY KEY,
  name TEXT,
  name_clean TEXT,
  artist_id TEXT,
  artist_name TEXT,
  artist_name_clean TEXT,
  album_id TEXT,
  album_name TEXT,
  release_date TEXT,
  release_year INTEGER,
  release_date_precision TEXT,
  duration_ms BIGINT,
  popularity INTEGER,
  explicit BOOLEAN,
  is_playable BOOLEAN,
  is_local BOOLEAN,
  isrc TEXT,
  first_seen_at TEXT NOT NULL,
  last_updated_at TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS artists (
  artist_id TEXT PRIMARY KEY,
  name TEXT,
  name_clean TEXT,
  genres TEXT,
  popularity INTEGER,
  followers BIGINT,
  enriched_at TEXT,
  first_seen_at TEXT NOT NULL,
  last_updated_at TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS albums (
  album_id TEXT PRIMARY KEY,
  name TEXT,
  name_clean TEXT,
  album_type TEXT,
  release_date TEXT,
  release_year INTEGER,
  release_date_precision TEXT,
  total_tracks INTEGER,
  label TEXT,
  genres TEXT,
  popularity INTEGER,
  enriched_at TEXT,
  first_seen_at TEXT NOT NULL,
  last_updated_at TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS playlist_tracks (
  playlist_id TEXT NOT NULL,
  track_id TEXT NOT NULL,
  snapshot_date TEXT NOT NULL,
  position INTEGER,
  added_at TEXT,
  is_removed BOOLEAN NOT NULL,
  PRIMARY KEY (playlist_id, track_id, snapshot_date)
)`,

	`CREATE TABLE IF NOT EXISTS track_sources (
  track_id TEXT NOT NULL,
  source_type TEXT NOT NULL,
  source_id TEXT NOT NULL,
  first_seen_at TEXT NOT NULL,
  PRIMARY KEY (track_id, source_type, source_id)
)`,

	`CREATE TABLE IF NOT EXISTS track_popularity_history (
  track_id TEXT NOT NULL,
  snapshot_date TEXT NOT NULL,
  popularity INTEGER,
  playlist_count INTEGER,
  PRIMARY KEY (track_id, snapshot_date)
)`,

	`CREATE TABLE IF NOT EXISTS data_quality_issues (
  issue_id TEXT PRIMARY KEY,
  run_id TEXT,
  record_type TEXT,
  record_id TEXT,
  issue_type TEXT,
  description TEXT,
  severity TEXT,
  detected_at TEXT
)`,

	`CREATE TABLE IF NOT EXISTS api_call_log (
  call_id TEXT PRIMARY KEY,
  run_id TEXT,
  endpoint TEXT,
  method TEXT,
  status INTEGER,
  latency_ms DOUBLE,
  attempt INTEGER,
  error TEXT,
  called_at TEXT
)`,

	`CREATE TABLE IF NOT EXISTS ingestion_runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT,
  finished_at TEXT,
  status TEXT,
  playlists BIGINT,
  playlists_failed BIGINT,
  entries BIGINT,
  issues BIGINT,
  error TEXT
)`,

	`CREATE INDEX IF NOT EXISTS playlist_tracks_track ON playlist_tracks (track_id, snapshot_date)`,
	`CREATE INDEX IF NOT EXISTS data_quality_issues_run ON data_quality_issues (run_id)`,
}

// Tables lists every table, in creation order.
var Tables = []string{
	"playlists",
	"tracks",
	"artists",
	"albums",
	"playlist_tracks",
	"track_sources",
	"track_popularity_history",
	"data_quality_issues",
	"api_call_log",
	"ingestion_runs",
}
