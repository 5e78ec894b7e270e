package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ademuri/workout-music-tools/internal/logging"
	"github.com/ademuri/workout-music-tools/internal/normalize"
	"github.com/ademuri/workout-music-tools/internal/quality"
	"github.com/ademuri/workout-music-tools/internal/spotify"
	"github.com/ademuri/workout-music-tools/internal/store"
)

// EnrichStore is the part of the store enrichment reads and writes.
type EnrichStore interface {
	ArtistsNeedingEnrichment(ctx context.Context, interval time.Duration, limit int) ([]string, error)
	AlbumsNeedingEnrichment(ctx context.Context, interval time.Duration, limit int) ([]string, error)
	SaveArtistEnrichment(ctx context.Context, artists []store.ArtistEnrichment) error
	SaveAlbumEnrichment(ctx context.Context, albums []store.AlbumEnrichment) error
	MarkArtistsEnriched(ctx context.Context, ids []string) error
	MarkAlbumsEnriched(ctx context.Context, ids []string) error
}

type EnrichSummary struct {
	Artists       int
	Albums        int
	Unknown       int
	FailedBatches int
}

// Enricher fills genres, popularity, followers and labels for artists and
// albums that are new or older than the interval.
type Enricher struct {
	api      API
	store    EnrichStore
	ledger   *quality.Ledger
	interval time.Duration
	limit    int
}

// NewEnricher builds an enricher. limit caps the artists and the albums
// looked at per run; 0 means all stale ones.
func NewEnricher(api API, st EnrichStore, ledger *quality.Ledger, interval time.Duration, limit int) *Enricher {
	return &Enricher{api: api, store: st, ledger: ledger, interval: interval, limit: limit}
}

func (e *Enricher) Run(ctx context.Context) (EnrichSummary, error) {
	var sum EnrichSummary
	if err := e.enrichArtists(ctx, &sum); err != nil {
		return sum, fmt.Errorf("enriching artists: %w", err)
	}
	if err := e.enrichAlbums(ctx, &sum); err != nil {
		return sum, fmt.Errorf("enriching albums: %w", err)
	}
	return sum, nil
}

func (e *Enricher) enrichArtists(ctx context.Context, sum *EnrichSummary) error {
	ids, err := e.store.ArtistsNeedingEnrichment(ctx, e.interval, e.limit)
	if err != nil {
		return err
	}
	logging.Info().Int("artists", len(ids)).Msg("artists needing enrichment")

	for batch := range slices.Chunk(ids, spotify.MaxArtistsPerRequest) {
		artists, err := e.api.GetArtists(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sum.FailedBatches++
			logging.Error().Err(err).Int("ids", len(batch)).Msg("fetching artists failed")
			continue
		}

		got := make(map[string]bool, len(artists))
		rows := make([]store.ArtistEnrichment, 0, len(artists))
		for _, a := range artists {
			got[a.ID] = true
			rows = append(rows, store.ArtistEnrichment{
				ID:         a.ID,
				Name:       a.Name,
				Genres:     a.Genres,
				Popularity: a.Popularity,
				Followers:  a.Followers.Total,
			})
		}
		if err := e.store.SaveArtistEnrichment(ctx, rows); err != nil {
			return err
		}
		sum.Artists += len(rows)

		missing := absent(batch, got)
		for _, id := range missing {
			e.ledger.Report(ctx, quality.RecordArtist, id, quality.MissingField,
				fmt.Sprintf("artist %s not returned by the API", id), quality.SeverityLow)
		}
		if err := e.store.MarkArtistsEnriched(ctx, missing); err != nil {
			return err
		}
		sum.Unknown += len(missing)
	}
	return nil
}

func (e *Enricher) enrichAlbums(ctx context.Context, sum *EnrichSummary) error {
	ids, err := e.store.AlbumsNeedingEnrichment(ctx, e.interval, e.limit)
	if err != nil {
		return err
	}
	logging.Info().Int("albums", len(ids)).Msg("albums needing enrichment")

	for batch := range slices.Chunk(ids, spotify.MaxAlbumsPerRequest) {
		albums, err := e.api.GetAlbums(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sum.FailedBatches++
			logging.Error().Err(err).Int("ids", len(batch)).Msg("fetching albums failed")
			continue
		}

		got := make(map[string]bool, len(albums))
		rows := make([]store.AlbumEnrichment, 0, len(albums))
		for _, a := range albums {
			got[a.ID] = true
			row := store.AlbumEnrichment{
				ID:          a.ID,
				Name:        a.Name,
				AlbumType:   a.AlbumType,
				Label:       a.Label,
				Genres:      a.Genres,
				Popularity:  a.Popularity,
				TotalTracks: a.TotalTracks,
			}
			if a.ReleaseDate != "" {
				if d, err := normalize.ParseReleaseDate(a.ReleaseDate); err != nil {
					e.ledger.Report(ctx, quality.RecordAlbum, a.ID, quality.MalformedDate, err.Error(), quality.SeverityMedium)
				} else {
					row.ReleaseDate = &d
				}
			}
			rows = append(rows, row)
		}
		if err := e.store.SaveAlbumEnrichment(ctx, rows); err != nil {
			return err
		}
		sum.Albums += len(rows)

		missing := absent(batch, got)
		for _, id := range missing {
			e.ledger.Report(ctx, quality.RecordAlbum, id, quality.MissingField,
				fmt.Sprintf("album %s not returned by the API", id), quality.SeverityLow)
		}
		if err := e.store.MarkAlbumsEnriched(ctx, missing); err != nil {
			return err
		}
		sum.Unknown += len(missing)
	}
	return nil
}

func absent(ids []string, got map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if !got[id] {
			out = append(out, id)
		}
	}
	return out
}
