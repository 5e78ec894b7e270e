// Package pipeline wires the Spotify client, normalizer, quality ledger and
// store into collection and enrichment runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ademuri/workout-music-tools/internal/logging"
	"github.com/ademuri/workout-music-tools/internal/metrics"
	"github.com/ademuri/workout-music-tools/internal/normalize"
	"github.com/ademuri/workout-music-tools/internal/quality"
	"github.com/ademuri/workout-music-tools/internal/spotify"
	"github.com/ademuri/workout-music-tools/internal/store"
)

// API is the part of the Spotify client a run needs.
type API interface {
	SearchPlaylists(ctx context.Context, query string, limit, maxItems int, onSkip func(spotify.Skip)) iter.Seq2[spotify.Entry[spotify.Playlist], error]
	GetPlaylist(ctx context.Context, id string) (*spotify.Playlist, error)
	PlaylistItems(ctx context.Context, playlistID string, limit int, onSkip func(spotify.Skip)) iter.Seq2[spotify.Entry[spotify.PlaylistItem], error]
	GetArtists(ctx context.Context, ids []string) ([]*spotify.Artist, error)
	GetAlbums(ctx context.Context, ids []string) ([]*spotify.Album, error)
}

// Loader is the part of the store a collection run writes to.
type Loader interface {
	LoadPlaylist(ctx context.Context, b store.PlaylistBatch) (store.LoadResult, error)
	AppendRun(ctx context.Context, r store.Run) error
}

type Config struct {
	Categories []Category
	// MaxPlaylists caps distinct playlists per run; 0 means no cap.
	MaxPlaylists int
	SearchLimit  int
	PageLimit    int
	// Progress receives a progress bar; nil disables it.
	Progress io.Writer
}

func DefaultConfig() Config {
	return Config{
		Categories:   DefaultCategories(),
		MaxPlaylists: 200,
		SearchLimit:  50,
		PageLimit:    100,
	}
}

// PageFailure is a playlist or search page that could not be fetched. It
// carries what is needed to re-run just that piece by hand.
type PageFailure struct {
	Category   string
	Query      string
	PlaylistID string
	Cursor     string
	Err        error
}

func (f *PageFailure) Error() string {
	if f.PlaylistID == "" {
		return fmt.Sprintf("search %q (category %s) at %s: %v", f.Query, f.Category, f.Cursor, f.Err)
	}
	return fmt.Sprintf("playlist %s (query %q, category %s) at %s: %v", f.PlaylistID, f.Query, f.Category, f.Cursor, f.Err)
}

func (f *PageFailure) Unwrap() error { return f.Err }

// RunSummary describes a finished collection run.
type RunSummary struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Discovered     int
	Playlists      int
	Entries        int
	TracksInserted int
	Removed        int
	Failed         []*PageFailure
	Issues         []quality.Count
	IssueTotal     int
	IssuesDropped  int
	Interrupted    bool
}

func (s RunSummary) Status() string {
	if s.Interrupted || len(s.Failed) > 0 {
		return store.RunPartial
	}
	return store.RunSucceeded
}

type Collector struct {
	api    API
	loader Loader
	ledger *quality.Ledger
	cfg    Config
	now    func() time.Time
}

func NewCollector(api API, loader Loader, ledger *quality.Ledger, cfg Config) *Collector {
	def := DefaultConfig()
	if len(cfg.Categories) == 0 {
		cfg.Categories = def.Categories
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = def.PageLimit
	}
	return &Collector{api: api, loader: loader, ledger: ledger, cfg: cfg, now: time.Now}
}

// SetClock replaces the clock that dates snapshots.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

type discovered struct {
	id       string
	name     string
	category string
	query    string
}

// Run searches every configured query, then fetches and loads each distinct
// playlist. A playlist that cannot be fetched is recorded and skipped; a
// storage failure ends the run with an error. Cancelling ctx stops the run
// between playlists.
func (c *Collector) Run(ctx context.Context) (RunSummary, error) {
	sum := RunSummary{RunID: c.ledger.RunID(), StartedAt: c.now()}

	found := c.discover(ctx, &sum)
	sum.Discovered = len(found)
	logging.Info().Int("playlists", len(found)).Msg("discovered playlists")

	bar := c.progress(len(found))
	var runErr error
	for _, d := range found {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}

		res, entries, err := c.collectPlaylist(ctx, d)
		bar.Add(1)

		var failure *PageFailure
		switch {
		case err == nil:
			sum.Playlists++
			sum.Entries += entries
			sum.TracksInserted += res.TracksInserted
			sum.Removed += res.Removed
			metrics.PlaylistsCollected.WithLabelValues("loaded").Inc()
		case errors.As(err, &failure):
			sum.Failed = append(sum.Failed, failure)
			metrics.PlaylistsCollected.WithLabelValues("failed").Inc()
			logging.Error().Err(failure.Err).
				Str("category", failure.Category).
				Str("query", failure.Query).
				Str("playlist", failure.PlaylistID).
				Str("cursor", failure.Cursor).
				Msg("playlist fetch failed")
		case ctx.Err() != nil:
			sum.Interrupted = true
		default:
			runErr = err
		}
		if runErr != nil || sum.Interrupted {
			break
		}
	}
	bar.Finish()

	sum.FinishedAt = c.now()
	sum.Issues = c.ledger.Counts()
	sum.IssueTotal = c.ledger.Total()
	sum.IssuesDropped = c.ledger.Dropped()

	run := store.Run{
		ID:              sum.RunID,
		StartedAt:       sum.StartedAt,
		FinishedAt:      sum.FinishedAt,
		Status:          sum.Status(),
		Playlists:       sum.Playlists,
		PlaylistsFailed: len(sum.Failed),
		Entries:         sum.Entries,
		Issues:          sum.IssueTotal,
	}
	if runErr != nil {
		run.Status = store.RunFailed
		run.Error = runErr.Error()
	} else if len(sum.Failed) > 0 {
		run.Error = fmt.Sprintf("%d failed pages, first: %v", len(sum.Failed), sum.Failed[0])
	}
	if err := c.loader.AppendRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Warn().Err(err).Str("run", sum.RunID).Msg("could not record run")
	}

	return sum, runErr
}

func (c *Collector) discover(ctx context.Context, sum *RunSummary) []discovered {
	seen := normalize.NewDeduper()
	var found []discovered

	for _, cat := range c.cfg.Categories {
		fromCategory := 0
	queries:
		for _, q := range cat.Queries {
			onSkip := func(s spotify.Skip) {
				c.ledger.Report(ctx, quality.RecordPlaylist, fmt.Sprintf("search:%s#%d", q, s.Position),
					quality.MissingField, fmt.Sprintf("null playlist in search results for %q", q), quality.SeverityLow)
			}
			for entry, err := range c.api.SearchPlaylists(ctx, q, c.cfg.SearchLimit, c.cfg.SearchLimit, onSkip) {
				if err != nil {
					if ctx.Err() != nil {
						return found
					}
					f := &PageFailure{Category: cat.Name, Query: q, Cursor: entry.Cursor, Err: err}
					sum.Failed = append(sum.Failed, f)
					logging.Error().Err(err).Str("category", cat.Name).Str("query", q).Msg("search failed")
					continue queries
				}
				if seen.Seen(entry.Item.ID) {
					continue
				}
				found = append(found, discovered{id: entry.Item.ID, name: entry.Item.Name, category: cat.Name, query: q})
				fromCategory++
				if c.cfg.MaxPlaylists > 0 && len(found) >= c.cfg.MaxPlaylists {
					return found
				}
				if cat.Target > 0 && fromCategory >= cat.Target {
					break queries
				}
			}
		}
		logging.Debug().Str("category", cat.Name).Int("playlists", fromCategory).Msg("searched category")
	}
	return found
}

func (c *Collector) collectPlaylist(ctx context.Context, d discovered) (store.LoadResult, int, error) {
	fail := func(cursor string, err error) (store.LoadResult, int, error) {
		if ctx.Err() != nil {
			return store.LoadResult{}, 0, ctx.Err()
		}
		return store.LoadResult{}, 0, &PageFailure{Category: d.category, Query: d.query, PlaylistID: d.id, Cursor: cursor, Err: err}
	}

	detail, err := c.api.GetPlaylist(ctx, d.id)
	if err != nil {
		return fail("/v1/playlists/"+d.id, err)
	}

	batch := store.PlaylistBatch{
		Playlist:     playlistRow(d, detail),
		SnapshotDate: c.now(),
	}

	onSkip := func(s spotify.Skip) {
		c.ledger.Report(ctx, quality.RecordPlaylistTrack, fmt.Sprintf("%s#%d", d.id, s.Position),
			quality.MissingField, fmt.Sprintf("null track at position %d of playlist %s", s.Position, d.id), quality.SeverityLow)
	}
	inSnapshot := normalize.NewDeduper()
	for entry, err := range c.api.PlaylistItems(ctx, d.id, c.cfg.PageLimit, onSkip) {
		if err != nil {
			// A partial snapshot would read as removals, so nothing is loaded.
			return fail(entry.Cursor, err)
		}

		loc := normalize.Location{PlaylistID: d.id, Position: entry.Position}
		res, issues := normalize.NormalizeTrack(entry.Item.Track, loc)
		c.ledger.Append(ctx, issues...)
		if res == nil {
			continue
		}
		if inSnapshot.Seen(res.Track.ID) {
			c.ledger.Report(ctx, quality.RecordPlaylistTrack, loc.String(), quality.DuplicateID,
				fmt.Sprintf("track %s repeated in playlist %s", res.Track.ID, d.id), quality.SeverityLow)
			continue
		}

		batch.Entries = append(batch.Entries, store.PlaylistEntry{
			Position: entry.Position,
			AddedAt:  entry.Item.AddedAt,
			Track:    res.Track,
		})
		batch.Artists = append(batch.Artists, res.Artists...)
		if res.Album != nil {
			batch.Albums = append(batch.Albums, *res.Album)
		}
	}

	res, err := c.loader.LoadPlaylist(ctx, batch)
	if err != nil {
		return res, 0, fmt.Errorf("loading playlist %s: %w", d.id, err)
	}
	logging.Debug().
		Str("playlist", d.id).
		Int("entries", len(batch.Entries)).
		Int("removed", res.Removed).
		Int("dropped", res.Dropped).
		Msg("loaded playlist")
	return res, len(batch.Entries), nil
}

func playlistRow(d discovered, p *spotify.Playlist) store.Playlist {
	row := store.Playlist{
		ID:                d.id,
		Name:              p.Name,
		Description:       p.Description,
		Category:          d.category,
		Query:             d.query,
		SpotifySnapshotID: p.SnapshotID,
	}
	if row.Name == "" {
		row.Name = d.name
	}
	if p.Owner != nil {
		row.OwnerID, row.OwnerName = p.Owner.ID, p.Owner.DisplayName
	}
	if p.Followers != nil {
		row.Followers = p.Followers.Total
	}
	if p.Tracks != nil {
		row.TrackCount = p.Tracks.Total
	}
	return row
}

func (c *Collector) progress(n int) *progressbar.ProgressBar {
	if c.cfg.Progress == nil {
		return progressbar.DefaultSilent(int64(n))
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(c.cfg.Progress),
		progressbar.OptionSetDescription("Collecting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("playlists"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
